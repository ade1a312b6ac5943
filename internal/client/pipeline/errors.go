package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/marketkeeper/internal/common"
)

// errorBody covers the error shapes the backend produces:
//
//	{"detail": "message"}
//	{"detail": [{"loc": ["body", "price"], "msg": "must be positive"}]}
//	{"message": "...", "errors": {"price": ["must be positive"]}}
type errorBody struct {
	Detail  json.RawMessage     `json:"detail"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

type detailItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// Classify maps a final response status to the client error taxonomy:
// 401 matches common.ErrAuth, other 4xx are *common.ValidationError and 5xx
// match common.ErrServer. 2xx yields nil.
func Classify(resp *Response) error {
	switch {
	case resp.OK():
		return nil
	case resp.Status == http.StatusUnauthorized:
		msg, _ := parseErrorBody(resp.Body)
		if msg == "" {
			msg = "unauthorized"
		}
		return fmt.Errorf("%w: %s", common.ErrAuth, msg)
	case resp.Status >= 400 && resp.Status < 500:
		msg, fields := parseErrorBody(resp.Body)
		return &common.ValidationError{Status: resp.Status, Message: msg, Fields: fields}
	default:
		msg, _ := parseErrorBody(resp.Body)
		if msg == "" {
			msg = http.StatusText(resp.Status)
		}
		return fmt.Errorf("%w: status %d: %s", common.ErrServer, resp.Status, msg)
	}
}

func parseErrorBody(body []byte) (string, map[string][]string) {
	var eb errorBody
	if len(body) == 0 || json.Unmarshal(body, &eb) != nil {
		return strings.TrimSpace(string(body)), nil
	}

	fields := map[string][]string{}
	for k, v := range eb.Errors {
		fields[k] = append(fields[k], v...)
	}

	msg := eb.Message
	if len(eb.Detail) > 0 {
		var s string
		if json.Unmarshal(eb.Detail, &s) == nil {
			if msg == "" {
				msg = s
			}
		} else {
			var items []detailItem
			if json.Unmarshal(eb.Detail, &items) == nil {
				for _, it := range items {
					name := "request"
					if len(it.Loc) > 0 {
						name = fmt.Sprint(it.Loc[len(it.Loc)-1])
					}
					fields[name] = append(fields[name], it.Msg)
				}
			}
		}
	}

	if len(fields) == 0 {
		fields = nil
	}
	return msg, fields
}
