package cli

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-phone/internal/cli"

var logger = otelslog.NewLogger(scopeName)
