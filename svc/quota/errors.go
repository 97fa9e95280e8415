package quota

import (
	"errors"
	"fmt"
	"strings"
)

var ErrQuotaExceeded = errors.New("quota exceeded")

// ExceededError reports which limit stopped the request.
type ExceededError struct {
	Resource string
	Limit    int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s limit %d", e.Resource, e.Limit)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Message is the user-facing explanation.
func (e *ExceededError) Message() string {
	if e.Resource == ResourceFileSize {
		return fmt.Sprintf("File size exceeds your plan limit of %dMB. Upgrade to Pro to upload larger files.", e.Limit)
	}
	label := strings.ReplaceAll(e.Resource, "_", " ")
	return fmt.Sprintf("You have reached your monthly limit of %d %s. Upgrade to Pro for unlimited access.", e.Limit, label)
}
