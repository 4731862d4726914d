package handlers

import (
	"net/http"
)

func (s *HandlersTestSuite) TestInitiateCallOffline() {
	w, body := s.do(http.MethodPost, "/api/v1/calls/initiate", "alice", map[string]interface{}{
		"to":    "bob",
		"offer": map[string]string{"type": "offer", "sdp": "v=0"},
	})
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("USER_NOT_ONLINE", body["code"])
	s.Equal("user not online", body["message"])
	s.Empty(s.hub.events)
}

func (s *HandlersTestSuite) TestInitiateCallOnline() {
	s.Require().NoError(s.registry.Register(s.ctx, "bob", "h-bob"))

	w, body := s.do(http.MethodPost, "/api/v1/calls/initiate", "alice", map[string]interface{}{
		"to":    "bob",
		"offer": map[string]string{"type": "offer", "sdp": "v=0"},
	})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("call initiated", body["message"])

	calls := s.hub.named("call-made")
	s.Require().Len(calls, 1)
	s.Equal("h-bob", calls[0].target)
	payload, ok := calls[0].body.(map[string]interface{})
	s.Require().True(ok)
	s.Equal("alice", payload["from"])
}

func (s *HandlersTestSuite) TestInitiateCallValidation() {
	w, _ := s.do(http.MethodPost, "/api/v1/calls/initiate", "alice", map[string]interface{}{
		"offer": map[string]string{"sdp": "v=0"},
	})
	s.Equal(http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/calls/initiate", "alice", map[string]interface{}{"to": "bob"})
	s.Equal(http.StatusBadRequest, w.Code)
}
