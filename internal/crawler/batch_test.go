package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/doorplate-crawler/internal/entity"
)

func summaries(forms []url.Values) []string {
	out := make([]string, len(forms))
	for i, f := range forms {
		out[i] = formSummary(f)
	}
	return out
}

func TestQueryAllPagesCarriesTokenAndSkipsFailedPages(t *testing.T) {
	p := newFakePortal(t)
	p.setReply(func(f url.Values) inquiryReply {
		switch f.Get("page") {
		case "1":
			return inquiryReply{records: 5, total: 4, rows: rowsFor("P1", 2), side: &sideChannel{Token: "T1"}}
		case "2":
			return inquiryReply{status: http.StatusInternalServerError}
		case "3":
			return inquiryReply{records: 5, total: 4, rows: rowsFor("P3", 2), side: &sideChannel{}}
		default:
			return inquiryReply{records: 5, total: 4, rows: rowsFor("P4", 1), side: &sideChannel{Token: "T4", Captcha: "k4"}}
		}
	})
	e, sleeps := newTestEngine(t, p, nil)
	sess := testSession()

	out := e.QueryAllPages(context.Background(), sess, Query{
		DistrictCode: "1",
		Range:        testRange,
		Credential:   Credential{Answer: "abcde"},
	})

	require.True(t, out.Succeeded())
	assert.Equal(t, []string{
		"area=1 page=1 captcha=abcde",
		"area=1 page=2 token=T1",
		"area=1 page=3 token=T1",
		"area=1 page=4 token=T1",
	}, summaries(p.sentInquiries()))

	want := append(recordsFor("", "P1", 2), recordsFor("", "P3", 2)...)
	want = append(want, recordsFor("", "P4", 1)...)
	if diff := cmp.Diff(want, out.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5, out.RecordCount)
	assert.Equal(t, "T4", out.Token)
	assert.Equal(t, "k4", out.CaptchaKey)
	assert.Equal(t, "k4", sess.CaptchaKey)
	assert.Equal(t, 3, sleeps.count(testPageDelay))
}

func TestQueryAllPagesFirstPageFailure(t *testing.T) {
	p := newFakePortal(t)
	p.setReply(func(url.Values) inquiryReply {
		return inquiryReply{side: &sideChannel{Error: true, Title: "驗證碼錯誤"}}
	})
	e, _ := newTestEngine(t, p, nil)

	out := e.QueryAllPages(context.Background(), testSession(), Query{DistrictCode: "1", Credential: Credential{Answer: "abcde"}})

	assert.False(t, out.Succeeded())
	assert.ErrorIs(t, out.Err, ErrCaptchaRejected)
	assert.Len(t, p.sentInquiries(), 1)
}

func TestQueryAllPagesTokenSeededFromInput(t *testing.T) {
	p := newFakePortal(t)
	p.setReply(func(f url.Values) inquiryReply {
		return inquiryReply{records: 2, total: 2, rows: rowsFor("X"+f.Get("page"), 1), side: &sideChannel{}}
	})
	e, _ := newTestEngine(t, p, nil)

	out := e.QueryAllPages(context.Background(), testSession(), Query{DistrictCode: "1", Credential: Credential{Token: "T0"}})

	assert.Equal(t, []string{"area=1 page=1 token=T0", "area=1 page=2 token=T0"}, summaries(p.sentInquiries()))
	assert.Empty(t, out.Token, "no token renewed by this district")
	assert.Equal(t, 2, out.RecordCount)
}

var districtsABC = []entity.District{
	{Name: "A", Code: "1"},
	{Name: "B", Code: "2"},
	{Name: "C", Code: "3"},
}

func TestRunBatchTokenExhaustionRevertsToCaptcha(t *testing.T) {
	p := newFakePortal(t)
	p.setReply(func(f url.Values) inquiryReply {
		switch f.Get("areaCode") + "/" + f.Get("page") {
		case "1/1":
			return inquiryReply{records: 3, total: 2, rows: rowsFor("A", 2), side: &sideChannel{Token: "T1", Captcha: "k2"}}
		case "1/2":
			return inquiryReply{records: 3, total: 2, rows: rowsFor("A2", 1), side: &sideChannel{Token: "T2"}}
		case "2/1":
			return inquiryReply{records: 1, total: 1, rows: rowsFor("B", 1), side: &sideChannel{}}
		default:
			return inquiryReply{records: 1, total: 1, rows: rowsFor("C", 1), side: &sideChannel{Token: "T3"}}
		}
	})
	sink := &recordingSink{}
	e, sleeps := newTestEngine(t, p, fixedGuess("ABCDE"), WithSink(sink))
	sess := testSession()

	out := e.RunBatch(context.Background(), sess, BatchRequest{BatchID: 7, CityName: "臺北市", Districts: districtsABC, Range: testRange, EditKind: "0"})

	require.True(t, out.Success)
	assert.Equal(t, map[string]int{"A": 3, "B": 1, "C": 1}, out.PerDistrict)
	assert.Equal(t, 5, out.TotalCount())
	assert.Empty(t, out.FailedDistricts())
	assert.Equal(t, []string{
		"area=1 page=1 captcha=abcde",
		"area=1 page=2 token=T1",
		"area=2 page=1 token=T2",
		"area=3 page=1 captcha=abcde",
	}, summaries(p.sentInquiries()))
	assert.Equal(t, []string{"k1", "k2"}, p.fetchedCaptchaKeys())
	assert.Equal(t, 2, sleeps.count(testDistrictDelay))

	want := append(recordsFor("A", "A", 2), recordsFor("A", "A2", 1)...)
	want = append(want, recordsFor("B", "B", 1)...)
	want = append(want, recordsFor("C", "C", 1)...)
	if diff := cmp.Diff(want, out.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	assert.Len(t, sink.saved["A"], 3)
	require.Len(t, sink.results, 3)
	assert.Equal(t, entity.DistrictResult{
		BatchID: 7, CityName: "臺北市", DistrictCode: "1", DistrictName: "A",
		RecordCount: 3, Status: entity.DistrictStatusSuccess,
	}, sink.results[0])
}

func TestRunBatchCaptchaExhaustedIsFatal(t *testing.T) {
	p := newFakePortal(t)
	e, _ := newTestEngine(t, p, fixedGuess("abc"))

	out := e.RunBatch(context.Background(), testSession(), BatchRequest{Districts: districtsABC, Range: testRange})

	assert.False(t, out.Success)
	assert.Empty(t, out.PerDistrict)
	assert.Empty(t, out.Records)
	assert.True(t, errors.Is(out.Err, ErrCaptchaExhausted))
	assert.Contains(t, out.ErrorMessage, "captcha not recognized after 10 attempts")
	assert.Empty(t, p.sentInquiries())
}

func TestRunBatchFirstServerErrorIsFatal(t *testing.T) {
	p := newFakePortal(t)
	p.setReply(func(url.Values) inquiryReply {
		return inquiryReply{side: &sideChannel{Error: true, Title: "查詢條件錯誤"}}
	})
	e, _ := newTestEngine(t, p, fixedGuess("abcde"))

	out := e.RunBatch(context.Background(), testSession(), BatchRequest{Districts: districtsABC, Range: testRange})

	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, ErrServerLogic)
	assert.Len(t, p.sentInquiries(), 1)
}

func TestRunBatchRetriesRejectedCaptcha(t *testing.T) {
	p := newFakePortal(t)
	rejected := 0
	p.setReply(func(f url.Values) inquiryReply {
		if f.Get("captchaInput") != "" && rejected < 2 {
			rejected++
			return inquiryReply{side: &sideChannel{Error: true, Title: "驗證碼輸入錯誤", Captcha: "k9"}}
		}
		return inquiryReply{records: 1, total: 1, rows: rowsFor(f.Get("areaCode"), 1), side: &sideChannel{Token: "T1"}}
	})
	e, _ := newTestEngine(t, p, fixedGuess("abcde"))

	out := e.RunBatch(context.Background(), testSession(), BatchRequest{Districts: districtsABC[:1], Range: testRange})

	require.True(t, out.Success)
	assert.Equal(t, map[string]int{"A": 1}, out.PerDistrict)
	assert.Len(t, p.sentInquiries(), 3)
	assert.Equal(t, []string{"k1", "k9", "k9"}, p.fetchedCaptchaKeys())
}

func TestRunBatchDistrictFailureAfterTokenContinues(t *testing.T) {
	p := newFakePortal(t)
	p.setReply(func(f url.Values) inquiryReply {
		switch f.Get("areaCode") {
		case "1":
			return inquiryReply{records: 1, total: 1, rows: rowsFor("A", 1), side: &sideChannel{Token: "T1"}}
		case "2":
			return inquiryReply{side: &sideChannel{Error: true, Title: "系統忙碌中"}}
		default:
			return inquiryReply{side: &sideChannel{Token: "T3", Title: noDataTitle}}
		}
	})
	sink := &recordingSink{err: errors.New("database down")}
	e, _ := newTestEngine(t, p, fixedGuess("abcde"), WithSink(sink))

	out := e.RunBatch(context.Background(), testSession(), BatchRequest{Districts: districtsABC, Range: testRange})

	require.True(t, out.Success)
	assert.Equal(t, map[string]int{"A": 1, "B": entity.DistrictFailed, "C": 0}, out.PerDistrict)
	assert.Equal(t, []string{"B"}, out.FailedDistricts())
	assert.Equal(t, 1, out.TotalCount())
	assert.Equal(t, []string{
		"area=1 page=1 captcha=abcde",
		"area=2 page=1 token=T1",
		"area=3 page=1 token=T1",
	}, summaries(p.sentInquiries()))

	require.Len(t, out.Results, 3)
	assert.Equal(t, entity.DistrictStatusFailed, out.Results[1].Status)
	assert.Zero(t, out.Results[1].RecordCount)
	assert.Equal(t, "portal error: 系統忙碌中", out.Results[1].ErrorMessage)
	assert.Equal(t, entity.DistrictStatusNoData, out.Results[2].Status)

	require.Len(t, sink.results, 3)
	assert.Equal(t, entity.DistrictResult{
		DistrictCode: "2", DistrictName: "B",
		Status: entity.DistrictStatusFailed, ErrorMessage: "portal error: 系統忙碌中",
	}, sink.results[1])
}

func TestRunBatchFailureAfterExhaustionIsNotFatal(t *testing.T) {
	p := newFakePortal(t)
	p.setReply(func(f url.Values) inquiryReply {
		switch f.Get("areaCode") {
		case "1":
			return inquiryReply{records: 1, total: 1, rows: rowsFor("A", 1), side: &sideChannel{Token: "T1"}}
		case "2":
			return inquiryReply{records: 1, total: 1, rows: rowsFor("B", 1), side: &sideChannel{}}
		default:
			return inquiryReply{side: &sideChannel{Error: true, Title: "系統忙碌中"}}
		}
	})
	e, _ := newTestEngine(t, p, fixedGuess("abcde"))

	out := e.RunBatch(context.Background(), testSession(), BatchRequest{Districts: districtsABC, Range: testRange})

	assert.True(t, out.Success)
	assert.Equal(t, map[string]int{"A": 1, "B": 1, "C": entity.DistrictFailed}, out.PerDistrict)
}

func TestRunBatchVisitsDistrictsInInputOrder(t *testing.T) {
	p := newFakePortal(t)
	p.setReply(func(f url.Values) inquiryReply {
		return inquiryReply{side: &sideChannel{Token: "T", Title: noDataTitle}}
	})
	e, _ := newTestEngine(t, p, fixedGuess("abcde"))

	districts := []entity.District{{Name: "C", Code: "3"}, {Name: "A", Code: "1"}, {Name: "B", Code: "2"}}
	out := e.RunBatch(context.Background(), testSession(), BatchRequest{Districts: districts, Range: testRange})

	require.True(t, out.Success)
	var visited []string
	for _, f := range p.sentInquiries() {
		visited = append(visited, f.Get("areaCode"))
	}
	assert.Equal(t, []string{"3", "1", "2"}, visited)

	var names []string
	for _, r := range out.Results {
		names = append(names, r.DistrictName)
	}
	assert.Equal(t, []string{"C", "A", "B"}, names)
}
