package notify

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewAckCode mints a shared acknowledgment token for one dispatch batch.
// Time component plus random component plus process component keeps codes
// practically unique across restarts and concurrent processes.
func NewAckCode() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	pid := strconv.FormatInt(int64(os.Getpid()), 36)
	return ts + random + pid
}
