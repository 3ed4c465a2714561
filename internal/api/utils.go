package api

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 工具端点：无状态的单步转换，入参只做长度与格式校验；错误以 "Error: ..." 文本返回

const (
	maxBase64Input       = 1_000_000
	maxBase64DecodeInput = 1_500_000
	maxURLInput          = 100_000
	timeLayout           = "2006-01-02 15:04:05"
)

func ping(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "pong")
}

// delay：挂起 min(seconds, DelayMax)；连接断开时提前返回，不阻塞其他请求
func (s *server) delay(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(r.PathValue("seconds"), 10, 32)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Error: seconds must be a non-negative integer")
		return
	}
	d := time.Duration(n) * time.Second
	if d > s.DelayMax {
		d = s.DelayMax
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		writeText(w, http.StatusOK, "OK")
	case <-r.Context().Done():
	}
}

// statusCode：返回指定状态码与空响应体；不在 200-599 范围或无法解析时回退 200
func statusCode(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 200 || code > 599 {
		code = http.StatusOK
	}
	w.WriteHeader(code)
}

func newUUID(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, uuid.NewString())
}

func base64Encode(w http.ResponseWriter, r *http.Request) {
	text := r.PathValue("text")
	if len(text) > maxBase64Input {
		writeText(w, http.StatusOK, "Error: Input too large (max 1MB)")
		return
	}
	writeText(w, http.StatusOK, base64.StdEncoding.EncodeToString([]byte(text)))
}

func base64Decode(w http.ResponseWriter, r *http.Request) {
	b64 := r.PathValue("b64")
	if len(b64) > maxBase64DecodeInput {
		writeText(w, http.StatusOK, "Error: Input too large (max ~1.5MB base64)")
		return
	}
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		writeText(w, http.StatusOK, "Error: Invalid base64 encoding")
		return
	}
	writeText(w, http.StatusOK, strings.ToValidUTF8(string(b), "�"))
}

// urlEncode：仅保留 RFC 3986 非保留字符，空格编码为 %20
func urlEncode(w http.ResponseWriter, r *http.Request) {
	text := r.PathValue("text")
	if len(text) > maxURLInput {
		writeText(w, http.StatusOK, "Error: Input too large (max 100KB)")
		return
	}
	writeText(w, http.StatusOK, strings.ReplaceAll(url.QueryEscape(text), "+", "%20"))
}

func urlDecode(w http.ResponseWriter, r *http.Request) {
	encoded := r.PathValue("encoded")
	if len(encoded) > maxURLInput {
		writeText(w, http.StatusOK, "Error: Input too large (max 100KB)")
		return
	}
	writeText(w, http.StatusOK, lenientUnescape(encoded))
}

// lenientUnescape：%XX 解码、'+' 视为空格；非法或不完整的转义按字面保留，结果中非法 UTF-8 替换为 U+FFFD
func lenientUnescape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '%':
			if i+2 < len(s) {
				if b, err := hex.DecodeString(s[i+1 : i+3]); err == nil {
					out = append(out, b[0])
					i += 2
					continue
				}
			}
			out = append(out, c)
		case '+':
			out = append(out, ' ')
		default:
			out = append(out, c)
		}
	}
	return strings.ToValidUTF8(string(out), "�")
}

var hashers = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
}

func hashText(w http.ResponseWriter, r *http.Request) {
	newHash, ok := hashers[strings.ToLower(r.PathValue("algo"))]
	if !ok {
		writeText(w, http.StatusOK, "Error: Unsupported hash algorithm (supported: md5, sha1, sha256)")
		return
	}
	h := newHash()
	_, _ = h.Write([]byte(r.PathValue("text")))
	writeText(w, http.StatusOK, hex.EncodeToString(h.Sum(nil)))
}

// jwtDecode：仅解码头部与载荷供查看，不校验签名，不可用于鉴权
func jwtDecode(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if strings.Count(token, ".") != 2 {
		writeJSON(w, http.StatusOK, errorResponse{Error: "Invalid JWT format"})
		return
	}
	claims := jwt.MapClaims{}
	t, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		writeJSON(w, http.StatusOK, errorResponse{Error: "Invalid JWT format or encoding"})
		return
	}
	writeJSON(w, http.StatusOK, jwtDecodeResponse{
		Warning: "This is for inspection only - signature NOT verified!",
		Header:  t.Header,
		Payload: claims,
	})
}

func timestamp(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, timestampResponse{Seconds: now.Unix(), Milliseconds: now.UnixMilli()})
}

func timeUTC(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, timeResponse{Datetime: time.Now().UTC().Format(timeLayout), Timezone: "UTC"})
}

// timeZone：按 IANA 时区名返回当前时间，例如 /time/Europe/Berlin
func timeZone(w http.ResponseWriter, r *http.Request) {
	tz := r.PathValue("tz")
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown time zone"})
		return
	}
	writeJSON(w, http.StatusOK, timeResponse{Datetime: time.Now().In(loc).Format(timeLayout), Timezone: loc.String()})
}
