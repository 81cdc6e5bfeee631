package model

import "time"

// CountryDaily is the persisted form of a MergedRecord, shared by the database and Parquet exporters.
type CountryDaily struct {
	Country           string    `gorm:"column:country;primaryKey"`
	Date              time.Time `gorm:"column:date;primaryKey;type:date"`
	Confirmed         int64     `gorm:"column:confirmed"`
	Recovered         int64     `gorm:"column:recovered"`
	Death             int64     `gorm:"column:death"`
	Active            int64     `gorm:"column:active"`
	CaseFatalityRatio int64     `gorm:"column:case_fatality_ratio"`
	Complete          bool      `gorm:"column:complete"`
	SnapshotID        string    `gorm:"column:snapshot_id"`
	BuiltAt           time.Time `gorm:"column:built_at"`
}

// TableName implements gorm's Tabler.
func (CountryDaily) TableName() string {
	return "covid_daily"
}

// NewCountryDaily converts r into its persisted form.
func NewCountryDaily(r MergedRecord, snapshotID string, builtAt time.Time) CountryDaily {
	return CountryDaily{
		Country:           r.Country,
		Date:              r.Date,
		Confirmed:         r.Confirmed,
		Recovered:         r.Recovered,
		Death:             r.Death,
		Active:            r.Active,
		CaseFatalityRatio: r.CaseFatalityRatio,
		Complete:          r.Complete,
		SnapshotID:        snapshotID,
		BuiltAt:           builtAt,
	}
}
