package services

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/retail-sync/utils"
)

// numericField coerces a numeric text column. Unparsable text becomes 0 and
// is logged at debug level; the record is still applied.
func numericField(table string, key int64, field string, raw *string) float64 {
	v, ok := utils.ParseNumeric(raw)
	if !ok && raw != nil && strings.TrimSpace(*raw) != "" {
		utils.InfoLogger.WithFields(logrus.Fields{
			"table": table,
			"id":    key,
			"field": field,
			"value": *raw,
		}).Debug("Unparsable numeric value, using 0")
	}
	return v
}

// businessKey trims a text business key; blank keys are reported as absent.
func businessKey(s *string) (string, bool) {
	k := utils.TrimmedOrEmpty(s)
	return k, k != ""
}
