package model

// PlateRecord is one normalized registration record.
type PlateRecord struct {
	ProductionYear int    `json:"production_year"`
	PlateNumber    string `json:"plate_number"` // digits, leading zeros stripped
	First          int    `json:"first"`
	Second         int    `json:"second"`
	Third          int    `json:"third"`
}

// SegmentStatistic describes how often a segment value appears across stored records.
type SegmentStatistic struct {
	Value                int   `json:"value" yaml:"value"`
	AppearanceCount      int64 `json:"appearance_count" yaml:"appearance_count"`
	LatestProductionYear *int  `json:"latest_production_year,omitempty" yaml:"latest_production_year,omitempty"`
	Rank                 int   `json:"rank" yaml:"rank"`
	RarityPercentile     int   `json:"rarity_percentile" yaml:"rarity_percentile"`
	TotalRecords         int64 `json:"total_records" yaml:"total_records"`
}

// OneIn returns N for "1 in N" odds of finding the value on a random plate.
// The second result is false when the value never appears.
func (s SegmentStatistic) OneIn() (float64, bool) {
	if s.AppearanceCount <= 0 {
		return 0, false
	}
	return float64(s.TotalRecords) / float64(s.AppearanceCount), true
}

// SegmentCount pairs a segment value with its appearance count.
type SegmentCount struct {
	Value           int   `json:"value" yaml:"value"`
	AppearanceCount int64 `json:"appearance_count" yaml:"appearance_count"`
}
