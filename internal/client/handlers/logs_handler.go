package handlers

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// lines written through utils.LogInterceptor by the text handler:
// line=12 time=2025-01-02T03:04:05Z level=INFO msg="sync start" action=full
var (
	lineRegex  = regexp.MustCompile(`^line=(\d+)\s`)
	timeRegex  = regexp.MustCompile(`\btime=(\S+)`)
	levelRegex = regexp.MustCompile(`\blevel=(\S+)`)
	msgRegex   = regexp.MustCompile(`\bmsg=("(?:[^"\\]|\\.)*"|\S+)`)
)

// LogsHandler serves the daemon log file
type LogsHandler struct {
	logFilePath string
}

func NewLogsHandler(logFilePath string) *LogsHandler {
	return &LogsHandler{logFilePath: logFilePath}
}

// GetLogs handles GET requests to retrieve logs
//
//	@Summary		Get logs
//	@Description	Get daemon logs with pagination support
//	@Tags			Logs
//	@Produce		json
//	@Param			startingToken	query		int	false	"Number of bytes to skip"			default(0)
//	@Param			maxResults		query		int	false	"Maximum number of lines to read"	default(100)
//	@Success		200				{object}	LogsResponse
//	@Failure		400				{object}	ControlPlaneError
//	@Failure		500				{object}	ControlPlaneError
//	@Router			/v1/logs [get]
//	@Security		APIToken
func (h *LogsHandler) GetLogs(c *gin.Context) {
	var params LogsRequest
	if err := c.ShouldBindQuery(&params); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeLogsRetrievalFailed, err)
		return
	}
	if params.MaxResults == 0 {
		params.MaxResults = defaultLogsMaxResults
	}

	logs, next, hasMore, err := h.readLogs(params.StartingToken, params.MaxResults)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeLogsRetrievalFailed, err)
		return
	}

	c.PureJSON(http.StatusOK, &LogsResponse{
		Logs:      logs,
		NextToken: next,
		HasMore:   hasMore,
	})
}

// readLogs returns up to limit entries starting at byte offset start and the
// offset of the first entry not returned.
func (h *LogsHandler) readLogs(start int64, limit int) ([]LogEntry, int64, bool, error) {
	file, err := os.Open(h.logFilePath)
	if errors.Is(err, os.ErrNotExist) {
		return []LogEntry{}, 0, false, nil
	} else if err != nil {
		return nil, 0, false, err
	}
	defer file.Close()

	if start > 0 {
		if _, err := file.Seek(start, io.SeekStart); err != nil {
			return nil, 0, false, err
		}
	}

	logs := make([]LogEntry, 0, limit)
	offset := start
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// a partial trailing line is read again next time
			if errors.Is(err, io.EOF) {
				return logs, offset, false, nil
			}
			return nil, 0, false, err
		}

		entry, ok := parseLogLine(strings.TrimRight(line, "\r\n"))
		if ok && len(logs) == limit {
			return logs, offset, true, nil
		}
		offset += int64(len(line))
		if ok {
			logs = append(logs, entry)
		}
	}
}

func parseLogLine(line string) (LogEntry, bool) {
	var entry LogEntry

	timeMatch := timeRegex.FindStringSubmatch(line)
	levelMatch := levelRegex.FindStringSubmatch(line)
	msgMatch := msgRegex.FindStringSubmatchIndex(line)
	if timeMatch == nil || levelMatch == nil || msgMatch == nil {
		return entry, false
	}

	if m := lineRegex.FindStringSubmatch(line); m != nil {
		entry.Line, _ = strconv.ParseInt(m[1], 10, 64)
	}
	entry.Timestamp = timeMatch[1]
	entry.Level = toLogLevel(levelMatch[1])

	msg := line[msgMatch[2]:msgMatch[3]]
	if unquoted, err := strconv.Unquote(msg); err == nil {
		msg = unquoted
	}
	if rest := strings.TrimSpace(line[msgMatch[1]:]); rest != "" {
		msg += " " + rest
	}
	entry.Message = msg

	return entry, true
}

func toLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}
