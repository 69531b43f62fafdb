package redis

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/classpeak/searchcore/internal/db"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisString("payload")))

	s := NewStoreForTest(c)
	data, err := s.Get(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("unexpected data: %s", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "mykey")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestGet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "mykey")
	if err == nil {
		t.Fatal("expected error")
	}
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestSetWithTTL_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "mykey", "value", "EX", "300")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	err := s.SetWithTTL(context.Background(), "mykey", []byte("value"), 300*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetWithTTL_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	err := s.SetWithTTL(context.Background(), "mykey", []byte("value"), 300*time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestIncr_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("INCR", "counter")).
		Return(mock.Result(mock.RedisInt64(7)))

	s := NewStoreForTest(c)
	val, err := s.Incr(context.Background(), "counter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 7 {
		t.Errorf("expected 7, got %d", val)
	}
}

func TestIncr_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("INCR", "counter")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if _, err := s.Incr(context.Background(), "counter"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSetNX_Acquired(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET" && cmd[1] == "lockkey" && contains(cmd, "NX") && contains(cmd, "EX")
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	won, err := s.SetNX(context.Background(), "lockkey", []byte("token"), 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !won {
		t.Error("expected acquisition")
	}
}

func TestSetNX_AlreadyHeld(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	// NX on an existing key replies nil, which is not an error.
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET" && contains(cmd, "NX")
		})).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	won, err := s.SetNX(context.Background(), "lockkey", []byte("token"), 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if won {
		t.Error("expected the lock to be held by someone else")
	}
}

func TestSetNX_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if _, err := s.SetNX(context.Background(), "lockkey", []byte("token"), 5*time.Second); err == nil {
		t.Fatal("expected error")
	}
}

func TestCASDelete_OwnerDeletes(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "EVAL" && cmd[2] == "1" && cmd[3] == "lockkey" && cmd[4] == "token"
		})).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	deleted, err := s.CASDelete(context.Background(), "lockkey", []byte("token"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("expected deletion")
	}
}

func TestCASDelete_TokenMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "EVAL"
		})).
		Return(mock.Result(mock.RedisInt64(0)))

	s := NewStoreForTest(c)
	deleted, err := s.CASDelete(context.Background(), "lockkey", []byte("stale-token"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Error("mismatched token must not delete")
	}
}

func TestTTL_Remaining(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("TTL", "mykey")).
		Return(mock.Result(mock.RedisInt64(120)))

	s := NewStoreForTest(c)
	ttl, err := s.TTL(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl.Seconds() != 120 {
		t.Errorf("expected 120s, got %v", ttl)
	}
}

func TestTTL_MissingKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("TTL", "mykey")).
		Return(mock.Result(mock.RedisInt64(-2)))

	s := NewStoreForTest(c)
	_, err := s.TTL(context.Background(), "mykey")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestTTL_NoExpiry(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("TTL", "mykey")).
		Return(mock.Result(mock.RedisInt64(-1)))

	s := NewStoreForTest(c)
	ttl, err := s.TTL(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl != -1 {
		t.Errorf("expected -1 for a persistent key, got %v", ttl)
	}
}

// --- search.go tests ---

func searchReply(total int64, pairs ...rueidis.RedisMessage) rueidis.RedisResult {
	msgs := append([]rueidis.RedisMessage{mock.RedisInt64(total)}, pairs...)
	return mock.Result(mock.RedisArray(msgs...))
}

func fieldArray(kv ...string) rueidis.RedisMessage {
	msgs := make([]rueidis.RedisMessage, len(kv))
	for i, s := range kv {
		msgs[i] = mock.RedisString(s)
	}
	return mock.RedisArray(msgs...)
}

func TestSearchCandidates_KNNQueryShape(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			if cmd[0] != "FT.SEARCH" || cmd[1] != "idx:services" {
				return false
			}
			if !strings.HasSuffix(cmd[2], "=>[KNN 10 @vector $BLOB]") {
				return false
			}
			return contains(cmd, "PARAMS") && contains(cmd, "BLOB") && contains(cmd, "DIALECT")
		})).
		Return(searchReply(1,
			mock.RedisString("searchcore:services:svc-1"),
			fieldArray("__vector_score", "0.25", "price", "60"),
		))

	s := NewStoreForTest(c)
	region := "r-wb"
	res, err := s.SearchCandidates(context.Background(), &db.CandidateQuery{
		IndexName: "idx:services",
		Vector:    []float32{0.1, 0.2},
		RegionID:  region,
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	e := res.Entries[0]
	if e.Key != "searchcore:services:svc-1" {
		t.Errorf("unexpected key: %s", e.Key)
	}
	// Cosine distance 0.25 becomes similarity 0.75.
	if math.Abs(e.Score-0.75) > 1e-9 {
		t.Errorf("score = %f, want 0.75", e.Score)
	}
	if _, ok := e.Fields["__vector_score"]; ok {
		t.Error("raw vector score must be stripped from fields")
	}
	if e.Fields["price"] != "60" {
		t.Errorf("unexpected fields: %v", e.Fields)
	}
}

func TestSearchCandidates_ScoreClampedAtZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(searchReply(1,
			mock.RedisString("searchcore:services:far"),
			fieldArray("__vector_score", "1.8"),
		))

	s := NewStoreForTest(c)
	res, err := s.SearchCandidates(context.Background(), &db.CandidateQuery{
		IndexName: "idx:services",
		Vector:    []float32{0.1},
		Limit:     5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Entries[0].Score != 0 {
		t.Errorf("score = %f, want clamp to 0", res.Entries[0].Score)
	}
}

func TestSearchCandidates_FilterOnlyUsesLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			if cmd[0] != "FT.SEARCH" {
				return false
			}
			if strings.Contains(cmd[2], "KNN") {
				return false
			}
			return contains(cmd, "LIMIT") && !contains(cmd, "PARAMS")
		})).
		Return(searchReply(0))

	s := NewStoreForTest(c)
	res, err := s.SearchCandidates(context.Background(), &db.CandidateQuery{
		IndexName: "idx:services",
		Limit:     20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 0 || len(res.Entries) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestSearchCandidates_Validation(t *testing.T) {
	s := NewStoreForTest(nil) // client not called

	if _, err := s.SearchCandidates(context.Background(), &db.CandidateQuery{Limit: 10}); err == nil {
		t.Error("expected error for missing index name")
	}
	if _, err := s.SearchCandidates(context.Background(), &db.CandidateQuery{IndexName: "idx"}); err == nil {
		t.Error("expected error for non-positive limit")
	}
}

func TestSearchCandidates_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.SearchCandidates(context.Background(), &db.CandidateQuery{
		IndexName: "idx:services",
		Limit:     10,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestBuildCandidateFilter(t *testing.T) {
	lo, hi := 20.0, 90.0
	tests := []struct {
		name string
		q    db.CandidateQuery
		want string
	}{
		{"unconstrained", db.CandidateQuery{}, "*"},
		{"region tag", db.CandidateQuery{RegionID: "r-wb"}, "(@region:{r\\-wb})"},
		{"borough tag", db.CandidateQuery{Borough: "Brooklyn"}, "(@borough:{Brooklyn})"},
		{"audience includes both", db.CandidateQuery{Audience: "kids"}, "(@audience:{kids|both})"},
		{"price range", db.CandidateQuery{PriceMin: &lo, PriceMax: &hi}, "(@price:[20 90])"},
		{"price ceiling only", db.CandidateQuery{PriceMax: &hi}, "(@price:[-inf 90])"},
		{
			"combined",
			db.CandidateQuery{RegionID: "r-wb", Audience: "adults", PriceMax: &hi},
			"(@region:{r\\-wb} @audience:{adults|both} @price:[-inf 90])",
		},
	}
	for _, tc := range tests {
		got := buildCandidateFilter(&tc.q)
		if got != tc.want {
			t.Errorf("%s: buildCandidateFilter = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEscapeTag(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"r-wb", "r\\-wb"},
		{"Long Island City", "Long\\ Island\\ City"},
		{"a.b{c}|d", "a\\.b\\{c\\}\\|d"},
		{"plain", "plain"},
	}
	for _, tc := range tests {
		if got := escapeTag(tc.in); got != tc.want {
			t.Errorf("escapeTag(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestVectorToBytes(t *testing.T) {
	b := []byte(vectorToBytes([]float32{1.0, -2.5}))
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	// 1.0 as little-endian float32 is 00 00 80 3f.
	if b[0] != 0x00 || b[1] != 0x00 || b[2] != 0x80 || b[3] != 0x3f {
		t.Errorf("unexpected encoding of 1.0: % x", b[:4])
	}
}

// isDBError is a test helper for checking wrapped db.Error.
func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}

func contains(cmd []string, token string) bool {
	for _, c := range cmd {
		if c == token {
			return true
		}
	}
	return false
}
