package ingest

import "github.com/lox/bogwatch/internal/models"

const (
	FlagPrecipNegative = "precip_negative"
	FlagPrecipUnlikely = "precip_unlikely"
)

// maxDailyRainMM is well above any recorded daily total for Irish stations.
const maxDailyRainMM = 500

// ValidateRecord returns quality flags for a daily record. Flagged records are
// still kept; missing rain is not a flag, it is counted separately.
func ValidateRecord(rec *models.DailyRecord) []string {
	var flags []string

	if rec.Rain.Valid {
		if rec.Rain.Float64 < 0 {
			flags = append(flags, FlagPrecipNegative)
		}
		if rec.Rain.Float64 > maxDailyRainMM {
			flags = append(flags, FlagPrecipUnlikely)
		}
	}

	return flags
}
