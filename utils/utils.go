package utils

import (
	"database/sql/driver"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

var moduleSourceDir string

func init() {
	_, file, _, _ := runtime.Caller(0)
	moduleSourceDir = sourceDir(file)
}

// sourceDir returns the module root, the parent of the utils directory.
func sourceDir(file string) string {
	dir := filepath.Dir(filepath.Dir(file))
	return filepath.ToSlash(dir) + "/"
}

func external(file string) bool {
	return !strings.HasPrefix(file, moduleSourceDir) || strings.HasSuffix(file, "_test.go")
}

// FileWithLineNum return the file name and line number of the first caller outside this module
func FileWithLineNum() string {
	frame := CallerFrame()
	if frame.PC == 0 {
		return ""
	}
	return frame.File + ":" + strconv.FormatInt(int64(frame.Line), 10)
}

// CallerFrame returns the first stack frame outside this module
func CallerFrame() runtime.Frame {
	pcs := [13]uintptr{}
	// the third caller usually from module internal
	length := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:length])
	for frame, more := frames.Next(); ; frame, more = frames.Next() {
		if external(frame.File) {
			return frame
		}
		if !more {
			break
		}
	}
	return runtime.Frame{}
}

// ToStringKey joins values into a single identity key
func ToStringKey(values ...interface{}) string {
	results := make([]string, len(values))

	for idx, value := range values {
		if valuer, ok := value.(driver.Valuer); ok {
			value, _ = valuer.Value()
		}

		switch v := value.(type) {
		case string:
			results[idx] = v
		case []byte:
			results[idx] = string(v)
		case uint:
			results[idx] = strconv.FormatUint(uint64(v), 10)
		case int:
			results[idx] = strconv.Itoa(v)
		case int64:
			results[idx] = strconv.FormatInt(v, 10)
		default:
			results[idx] = fmt.Sprint(v)
		}
	}

	return strings.Join(results, "_")
}
