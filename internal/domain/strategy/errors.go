package strategy

import "errors"

var ErrAuditImmutable = errors.New("ai_response rows are immutable")
