package handlers

import (
	"net/http"
)

func (s *HandlersTestSuite) TestSendMessage() {
	s.Require().NoError(s.registry.Register(s.ctx, "bob", "h-bob"))

	w, body := s.do(http.MethodPost, "/api/v1/messages", "alice", map[string]string{
		"receiver_id": "bob",
		"content":     "hi bob",
		"media_url":   "https://cdn.example/clip.MP4",
	})
	s.Require().Equal(http.StatusCreated, w.Code)
	s.Equal("direct", body["type"])
	s.Equal("video", body["media_type"])

	s.Len(s.hub.named("msg-recieve"), 1)
	s.Len(s.hub.named("new-notification"), 1)
	notes := s.notificationsFor("bob")
	s.Require().Len(notes, 1)
	s.Equal(`Alice sent you a message: "hi bob"`, notes[0].Message)

	w, body = s.do(http.MethodGet, "/api/v1/messages/conversation?receiver_id=alice", "bob", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(body["messages"], 1)
}

func (s *HandlersTestSuite) TestSendMessageValidation() {
	w, body := s.do(http.MethodPost, "/api/v1/messages", "alice", map[string]string{"content": "hi"})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("receiver_id", body["field"])

	w, body = s.do(http.MethodPost, "/api/v1/messages", "alice", map[string]string{
		"receiver_id": "bob",
		"media_url":   "https://cdn.example/song.mp3",
	})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("media_url", body["field"])

	w, _ = s.do(http.MethodPost, "/api/v1/messages", "alice", map[string]string{"receiver_id": "alice", "content": "me"})
	s.Equal(http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/messages", "alice", map[string]string{"receiver_id": "bob"})
	s.Equal(http.StatusBadRequest, w.Code, "no content and no media")

	w, _ = s.do(http.MethodGet, "/api/v1/messages/conversation", "alice", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlersTestSuite) TestSendMessageBlocked() {
	s.Require().NoError(s.directory.Block(s.ctx, "bob", "alice"))

	w, body := s.do(http.MethodPost, "/api/v1/messages", "alice", map[string]string{"receiver_id": "bob", "content": "hi"})
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("FORBIDDEN", body["code"])
	s.Empty(s.notificationsFor("bob"))
}

func (s *HandlersTestSuite) TestCommunityMessage() {
	w, body := s.do(http.MethodPost, "/api/v1/messages/community", "bob", map[string]string{
		"community_id": s.community.ID,
		"content":      "jam tonight?",
	})
	s.Require().Equal(http.StatusCreated, w.Code)
	s.Equal("group", body["type"])

	rooms := s.hub.named("community-message-received")
	s.Require().Len(rooms, 1)
	s.Equal("room:"+s.community.ID, rooms[0].target)

	notes := s.notificationsFor("alice")
	s.Require().Len(notes, 1)
	s.Equal(`bob sent a message in the community "Synths" - jam tonight?`, notes[0].Message)
	s.Empty(s.notificationsFor("bob"))

	w, body = s.do(http.MethodGet, "/api/v1/messages/group/"+s.community.ID, "alice", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(body["messages"], 1)

	w, _ = s.do(http.MethodGet, "/api/v1/messages/group/"+s.community.ID, "carol", nil)
	s.Equal(http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodGet, "/api/v1/messages/group/nope", "alice", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlersTestSuite) TestCommunityMessageErrors() {
	w, _ := s.do(http.MethodPost, "/api/v1/messages/community", "carol", map[string]string{
		"community_id": s.community.ID,
		"content":      "let me in",
	})
	s.Equal(http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/messages/community", "alice", map[string]string{
		"community_id": "nope",
		"content":      "hello?",
	})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlersTestSuite) TestMarkMessageRead() {
	_, sent := s.do(http.MethodPost, "/api/v1/messages", "alice", map[string]string{"receiver_id": "bob", "content": "hi"})
	id, _ := sent["id"].(string)
	s.Require().NotEmpty(id)

	for _, other := range []string{"alice", "carol"} {
		w, body := s.do(http.MethodPut, "/api/v1/messages/"+id+"/read", other, nil)
		s.Equal(http.StatusNotFound, w.Code, other)
		s.Nil(body["content"], other)
	}

	w, body := s.do(http.MethodPut, "/api/v1/messages/"+id+"/read", "bob", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(true, body["is_read"])

	w, _ = s.do(http.MethodPut, "/api/v1/messages/missing/read", "bob", nil)
	s.Equal(http.StatusNotFound, w.Code)
}
