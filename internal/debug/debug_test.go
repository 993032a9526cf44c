package debug

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// saveAndRestoreState saves the debug package state and returns a cleanup function.
func saveAndRestoreState() func() {
	originalDebug := EnableDebug
	originalMode := StdioMode
	originalOutput := debugOutput
	originalFile := debugFile
	return func() {
		EnableDebug = originalDebug
		StdioMode = originalMode
		debugOutput = originalOutput
		debugFile = originalFile
	}
}

func TestSetStdioMode(t *testing.T) {
	defer saveAndRestoreState()()

	SetStdioMode(true)
	assert.True(t, StdioMode)

	SetStdioMode(false)
	assert.False(t, StdioMode)
}

func TestIsDebugEnabled(t *testing.T) {
	defer saveAndRestoreState()()

	EnableDebug = "false"
	StdioMode = false
	assert.False(t, IsDebugEnabled())

	EnableDebug = "true"
	StdioMode = false
	assert.True(t, IsDebugEnabled())

	EnableDebug = "invalid"
	assert.False(t, IsDebugEnabled())
}

func TestIsDebugEnabledViaEnvVar(t *testing.T) {
	defer saveAndRestoreState()()

	EnableDebug = "false"
	StdioMode = false
	t.Setenv("DEBUG", "1")
	assert.True(t, IsDebugEnabled())
}

func TestStdioModeSuppressesDebugRegardlessOfEnableDebug(t *testing.T) {
	defer saveAndRestoreState()()

	EnableDebug = "true"
	StdioMode = true
	assert.False(t, IsDebugEnabled())
}

func TestLog(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	StdioMode = false
	Log("TEST", "Hello %s", "World")

	output := buf.String()
	assert.Contains(t, output, "[DEBUG:TEST]")
	assert.Contains(t, output, "Hello World")
}

func TestLogSuppressedInStdioMode(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	StdioMode = true
	Log("TEST", "should not appear")

	assert.Empty(t, buf.String())
}

func TestLogHelpersTagEachComponent(t *testing.T) {
	defer saveAndRestoreState()()

	EnableDebug = "true"
	StdioMode = false

	tests := []struct {
		name    string
		logFunc func(string, ...interface{})
		prefix  string
	}{
		{"LogScan", LogScan, "[DEBUG:SCAN]"},
		{"LogReader", LogReader, "[DEBUG:READ]"},
		{"LogSearch", LogSearch, "[DEBUG:SEARCH]"},
		{"LogRPC", LogRPC, "[DEBUG:RPC]"},
		{"LogConfig", LogConfig, "[DEBUG:CONFIG]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetDebugOutput(&buf)

			tt.logFunc("message %s", "payload")

			output := buf.String()
			assert.Contains(t, output, tt.prefix)
			assert.Contains(t, output, "message payload")
		})
	}
}

func TestConcurrentLogging(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	StdioMode = false

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			LogScan("scan from goroutine %d", id)
			LogSearch("search from goroutine %d", id)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.True(t, true)
}

func TestNoOutputWithNilWriter(t *testing.T) {
	defer saveAndRestoreState()()

	SetDebugOutput(nil)
	EnableDebug = "true"
	StdioMode = false

	Log("TEST", "test %s", "message")
	LogScan("test %s", "message")
	LogSearch("test %s", "message")
	LogRPC("test %s", "message")
}

func TestInitDebugLogFile(t *testing.T) {
	defer saveAndRestoreState()()

	logPath, err := InitDebugLogFile()
	assert.NoError(t, err)
	assert.NotEmpty(t, logPath)
	defer os.Remove(logPath)

	_, err = os.Stat(logPath)
	assert.NoError(t, err)

	EnableDebug = "true"
	StdioMode = false
	Log("TEST", "persisted log message")

	err = CloseDebugLog()
	assert.NoError(t, err)

	content, err := os.ReadFile(logPath)
	assert.NoError(t, err)
	assert.Contains(t, string(content), "persisted log message")
}
