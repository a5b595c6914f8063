package sham

import log "github.com/sirupsen/logrus"

func init() {
	// Setup logrus
	//log.SetReportCaller(true)
	log.SetFormatter(&log.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	log.SetLevel(log.InfoLevel)
}

// SetLogLevel 按名字设置日志级别（trace/debug/info/warn/error）
func SetLogLevel(level string) error {
	lv, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lv)
	return nil
}
