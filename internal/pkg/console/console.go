/*
Package console reads operator commands from the server's standard input.

The only command is /end, which stops the server the same way an interrupt signal does.
*/
package console

import (
	"bufio"
	"io"
	"strings"

	"chatty/internal/pkg/logx"
)

// EndCommand stops the server when typed on the console.
const EndCommand = "/end"

// Watch reads lines from r until EndCommand is entered or r is exhausted.
// onEnd is called once when EndCommand is seen. Watch reports whether that happened.
func Watch(r io.Reader, onEnd func()) bool {
	logger := logx.Component("Console")
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.EqualFold(line, EndCommand) {
			logger.Info().Msg("Shutdown requested from console.")
			onEnd()
			return true
		}

		logger.Warn().Str("input", line).Msg("Unknown console command, only /end is supported.")
	}

	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Msg("Console input failed.")
	}
	return false
}
