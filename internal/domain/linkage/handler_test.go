package linkage

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mpi/mpi/internal/domain/mpi"
)

func postLink(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/link", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

const scenarioBody = `{"record":{
	"birth_date": "2013-11-07",
	"sex": "M",
	"name": [{"family": "Shepard", "given": ["John"]}],
	"identifiers": [{"type": "MR", "value": "123456789"}]
}}`

func TestHandler_Link_FirstSighting(t *testing.T) {
	svc, _ := newLinkTest()
	h := NewHandler(svc)
	e := echo.New()

	c, rec := postLink(e, scenarioBody)
	if err := h.Link(c); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.MatchGrade != GradeCertainlyNot {
		t.Errorf("match_grade = %q, want %q", got.MatchGrade, GradeCertainlyNot)
	}
	if got.PersonReferenceID == nil {
		t.Error("person_reference_id = null, want the minted person")
	}
	// empty results must render as [], not null
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Errorf("body = %s, want empty results array", rec.Body.String())
	}
}

func TestHandler_Link_CertainResponseShape(t *testing.T) {
	svc, _ := newLinkTest()
	h := NewHandler(svc)
	e := echo.New()

	mustLink(t, svc, &Request{Record: scenarioRecord()})

	c, rec := postLink(e, scenarioBody)
	if err := h.Link(c); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["match_grade"] != GradeCertain {
		t.Errorf("match_grade = %v, want %q", got["match_grade"], GradeCertain)
	}
	if got["person_reference_id"] == nil {
		t.Error("person_reference_id = null, want the matched person")
	}
	results, ok := got["results"].([]interface{})
	if !ok || len(results) != 1 {
		t.Fatalf("results = %v, want one entry", got["results"])
	}
	entry := results[0].(map[string]interface{})
	for _, key := range []string{"person_reference_id", "rms", "grade", "pass_label"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("result entry missing %q: %v", key, entry)
		}
	}
	if rms, _ := entry["rms"].(float64); rms != 1.0 {
		t.Errorf("rms = %v, want 1.0", entry["rms"])
	}
}

func TestHandler_Link_PossibleHasNullPerson(t *testing.T) {
	svc, _ := newLinkTest()
	h := NewHandler(svc)
	e := echo.New()

	mustLink(t, svc, &Request{Record: scenarioRecord()})
	mustLink(t, svc, &Request{Record: scenarioRecord()})

	anon := strings.Replace(scenarioBody, `"given": ["John"]`, `"given": ["Anon"]`, 1)
	c, rec := postLink(e, anon)
	if err := h.Link(c); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["match_grade"] != GradePossible {
		t.Fatalf("match_grade = %v, want %q", got["match_grade"], GradePossible)
	}
	if got["person_reference_id"] != nil {
		t.Errorf("person_reference_id = %v, want null on possible", got["person_reference_id"])
	}
}

func TestHandler_Link_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		breakRepo bool
		wantCode  int
		wantMsg   string
	}{
		{
			name:     "empty record",
			body:     `{"record":{}}`,
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "empty-record",
		},
		{
			name:     "empty body",
			body:     `{}`,
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "empty-record",
		},
		{
			name:     "unknown algorithm",
			body:     `{"algorithm":"invalid","record":{"birth_date":"2013-11-07"}}`,
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "No algorithm found",
		},
		{
			name:     "malformed json",
			body:     `{"record":`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid birthdate",
			body:     `{"record":{"birth_date":"never"}}`,
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:      "storage unavailable",
			body:      scenarioBody,
			breakRepo: true,
			wantCode:  http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newLinkTest()
			if tt.breakRepo {
				repo.failWith = mpi.ErrUnavailable
			}
			h := NewHandler(svc)
			e := echo.New()

			c, _ := postLink(e, tt.body)
			err := h.Link(c)
			var he *echo.HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("Link() error = %v, want *echo.HTTPError", err)
			}
			if he.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", he.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && he.Message != tt.wantMsg {
				t.Errorf("message = %v, want %q", he.Message, tt.wantMsg)
			}
		})
	}
}

func TestHandler_Link_UnknownAlgorithmBeatsEmptyRecord(t *testing.T) {
	svc, _ := newLinkTest()
	h := NewHandler(svc)
	e := echo.New()

	// both problems at once: the algorithm lookup is decided first
	c, _ := postLink(e, `{"algorithm":"invalid","record":{}}`)
	err := h.Link(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("Link() error = %v, want *echo.HTTPError", err)
	}
	if he.Message != "No algorithm found" {
		t.Errorf("message = %v, want %q", he.Message, "No algorithm found")
	}
}

const sampleHL7 = "MSH|^~\\&|REG|GENHOS|MPI|HIE|20240312102030||ADT^A01|MSG00042|P|2.5.1\r" +
	"PID|1||123456789^^^GENHOS^MR||Shepard^John||20131107|M\r"

func postHL7(e *echo.Echo, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMETextPlain)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_LinkHL7(t *testing.T) {
	svc, repo := newLinkTest()
	h := NewHandler(svc)
	e := echo.New()

	c, rec := postHL7(e, "/link/hl7v2", sampleHL7)
	if err := h.LinkHL7(c); err != nil {
		t.Fatalf("LinkHL7() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.MatchGrade != GradeCertainlyNot {
		t.Errorf("match_grade = %q, want %q", got.MatchGrade, GradeCertainlyNot)
	}
	if got.PersonReferenceID == nil {
		t.Error("person_reference_id = null, want the minted person")
	}
	for _, p := range repo.patients {
		if p.ExternalPersonSource == nil || *p.ExternalPersonSource != "GENHOS" {
			t.Errorf("external_person_source = %v, want the sending facility", p.ExternalPersonSource)
		}
	}

	// replaying the identical message must land on the stored person
	c, rec = postHL7(e, "/link/hl7v2", sampleHL7)
	if err := h.LinkHL7(c); err != nil {
		t.Fatalf("LinkHL7() replay error = %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if got.MatchGrade != GradeCertain {
		t.Errorf("replay match_grade = %q, want %q", got.MatchGrade, GradeCertain)
	}
	if len(got.Results) != 1 || got.Results[0].RMS != 1.0 {
		t.Errorf("replay results = %+v, want one entry at rms 1.0", got.Results)
	}
}

func TestHandler_LinkHL7_Errors(t *testing.T) {
	const headerOnly = "MSH|^~\\&|REG|GENHOS|MPI|HIE|20240312102030||ADT^A01|MSG00042|P|2.5.1\r"

	tests := []struct {
		name     string
		target   string
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "not hl7",
			target:   "/link/hl7v2",
			body:     `{"record":{}}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "no pid segment",
			target:   "/link/hl7v2",
			body:     headerOnly,
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "empty pid",
			target:   "/link/hl7v2",
			body:     headerOnly + "PID|1\r",
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "empty-record",
		},
		{
			name:     "unknown algorithm",
			target:   "/link/hl7v2?algorithm=invalid",
			body:     sampleHL7,
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "No algorithm found",
		},
		{
			name:     "unparseable birthdate",
			target:   "/link/hl7v2",
			body:     strings.Replace(sampleHL7, "20131107", "NOTADATE", 1),
			wantCode: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newLinkTest()
			h := NewHandler(svc)
			e := echo.New()

			c, _ := postHL7(e, tt.target, tt.body)
			err := h.LinkHL7(c)
			var he *echo.HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("LinkHL7() error = %v, want *echo.HTTPError", err)
			}
			if he.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", he.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && he.Message != tt.wantMsg {
				t.Errorf("message = %v, want %q", he.Message, tt.wantMsg)
			}
		})
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	svc, _ := newLinkTest()
	h := NewHandler(svc)
	e := echo.New()
	h.RegisterRoutes(e.Group(""))

	want := map[string]bool{"/link": false, "/link/hl7v2": false}
	for _, r := range e.Routes() {
		if r.Method == http.MethodPost {
			if _, ok := want[r.Path]; ok {
				want[r.Path] = true
			}
		}
	}
	for path, found := range want {
		if !found {
			t.Errorf("POST %s route not registered", path)
		}
	}
}
