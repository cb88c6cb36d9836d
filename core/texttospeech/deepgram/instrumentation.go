package deepgram

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-live/core/texttospeech/deepgram"

var logger = otelslog.NewLogger(scopeName)
