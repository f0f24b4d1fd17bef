package logger

import (
	"Timeline/internal/api/config"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

func SetupGin(r *gin.Engine) {
	output := LogWriter
	if output == nil {
		output = os.Stdout
	}
	index, token := "logstash-timeline", ""
	if config.Cfg != nil {
		token = config.Cfg.Logstash.Token
		if config.Cfg.Logstash.Index != "" {
			index = config.Cfg.Logstash.Index
		}
	}
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output: output,
		Formatter: func(p gin.LogFormatterParams) string {
			var traceID string
			if p.Keys != nil {
				if id, ok := p.Keys[TraceIDKey].(string); ok {
					traceID = id
				}
			}

			if traceID == "" && p.Request != nil {
				traceID = TraceID(p.Request.Context())
			}

			return fmt.Sprintf(
				`{"time":"%s","level":"INFO","msg":"GIN_ACCESS","trace_id":"%s","log_token":"%s","target_index":"%s","method":"%s","path":"%s","status":%d,"latency":"%v"}`+"\n",
				p.TimeStamp.Format(time.RFC3339),
				traceID,
				token,
				index,
				p.Method,
				p.Path,
				p.StatusCode,
				p.Latency,
			)
		},
	}))

	r.Use(gin.Recovery())
}
