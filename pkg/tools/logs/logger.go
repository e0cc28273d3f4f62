package logs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	// stackError 判断是否实现 errors.withStack / errors.withMessage
	stackError interface {
		Error() string
		Format(f fmt.State, verb rune)
	}

	stackFrame struct {
		function, file string
		line           int64
	}

	stackFrames []stackFrame
)

var fileAndLinePattern = regexp.MustCompile(`^\s+([^:\s]+):(\d+)$`)

// ParseErr 把错误转换为 zap 字段
// pkg/errors 包装的错误额外解析调用栈，方便日志定位
func ParseErr(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}

	if _, ok := err.(stackError); !ok {
		return fields
	}

	lines := strings.Split(fmt.Sprintf("%+v", err), "\n")
	var frames stackFrames
	for i := 1; i < len(lines); i++ {
		matches := fileAndLinePattern.FindStringSubmatch(lines[i])
		if len(matches) == 0 {
			continue
		}

		line, parseErr := strconv.ParseInt(matches[2], 10, 64)
		if parseErr != nil {
			continue
		}
		frames = append(frames, stackFrame{
			function: strings.TrimSpace(lines[i-1]), file: matches[1], line: line,
		})
	}

	if len(frames) > 0 {
		fields = append(fields, zap.Array("stack", frames))
	}

	return fields
}

func (s stackFrame) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("func", s.function)
	encoder.AddString("file", s.file)
	encoder.AddInt64("line", s.line)

	return nil
}

func (frames stackFrames) MarshalLogArray(encoder zapcore.ArrayEncoder) error {
	for _, frame := range frames {
		if err := encoder.AppendObject(frame); err != nil {
			return err
		}
	}

	return nil
}
