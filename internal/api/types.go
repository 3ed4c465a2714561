package api

// 对外返回结构：字段稳定，新增字段需评估兼容性

type echoResponse struct {
	Method  string            `json:"method"`
	Query   map[string]string `json:"query"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type ipInfoResponse struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	ASN     string `json:"asn"`
	Org     string `json:"org"`
}

type timestampResponse struct {
	Seconds      int64 `json:"seconds"`
	Milliseconds int64 `json:"milliseconds"`
}

type timeResponse struct {
	Datetime string `json:"datetime"`
	Timezone string `json:"timezone"`
}

type jwtDecodeResponse struct {
	Warning string         `json:"warning"`
	Header  map[string]any `json:"header"`
	Payload map[string]any `json:"payload"`
}

type errorResponse struct {
	Error string `json:"error"`
}
