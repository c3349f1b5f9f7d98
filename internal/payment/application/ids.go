package application

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	orderIDPrefix  = "ORDER_"
	rebillIDPrefix = "REBILL_"
)

// correlationID builds PREFIX<unix millis>_<random token>.
func correlationID(prefix string, now time.Time) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return prefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + token
}
