package gateway

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-phone/core/gateway"

var logger = otelslog.NewLogger(scopeName)
