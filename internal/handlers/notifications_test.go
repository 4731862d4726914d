package handlers

import (
	"net/http"
)

func (s *HandlersTestSuite) TestNotificationsRequireAuth() {
	w, _ := s.do(http.MethodGet, "/api/v1/notifications", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlersTestSuite) TestGetNotificationsEmpty() {
	w, body := s.do(http.MethodGet, "/api/v1/notifications", "bob", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal([]interface{}{}, body["notifications"])
	s.EqualValues(0, body["count"])
}

func (s *HandlersTestSuite) TestUnreadPushesOnlyWhenConnected() {
	s.seedNotifications("bob", 2)

	w, body := s.do(http.MethodGet, "/api/v1/notifications/unread", "bob", nil)
	s.Equal(http.StatusOK, w.Code)
	s.EqualValues(2, body["unread"])
	s.Empty(s.hub.named("new-notification"))

	s.Require().NoError(s.registry.Register(s.ctx, "bob", "h-bob"))
	w, _ = s.do(http.MethodGet, "/api/v1/notifications/unread", "bob", nil)
	s.Equal(http.StatusOK, w.Code)
	pushes := s.hub.named("new-notification")
	s.Require().Len(pushes, 1)
	s.Equal("h-bob", pushes[0].target)
}

func (s *HandlersTestSuite) TestMarkAllRead() {
	s.seedNotifications("bob", 3)

	w, body := s.do(http.MethodPost, "/api/v1/notifications/read", "bob", nil)
	s.Equal(http.StatusOK, w.Code)
	s.EqualValues(3, body["updated"])

	_, body = s.do(http.MethodGet, "/api/v1/notifications/unread", "bob", nil)
	s.EqualValues(0, body["unread"])

	_, body = s.do(http.MethodPost, "/api/v1/notifications/read", "bob", nil)
	s.EqualValues(0, body["updated"])
}

func (s *HandlersTestSuite) TestMarkOneRead() {
	s.seedNotifications("bob", 1)
	id := s.notificationsFor("bob")[0].ID

	w, _ := s.do(http.MethodPut, "/api/v1/notifications/"+id+"/read", "alice", nil)
	s.Equal(http.StatusNotFound, w.Code, "another user's notification is not found")

	w, body := s.do(http.MethodPut, "/api/v1/notifications/"+id+"/read", "bob", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(true, body["is_read"])
	s.True(s.notificationsFor("bob")[0].IsRead)

	w, body = s.do(http.MethodPut, "/api/v1/notifications/missing/read", "bob", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("NOT_FOUND", body["code"])
}

func (s *HandlersTestSuite) TestNotificationPageWalk() {
	s.seedNotifications("bob", 12)

	steps := []struct {
		items     int
		exhausted bool
		skip      int
	}{
		{10, false, 10},
		{2, false, 12},
		{0, true, 12},
		{10, false, 10},
	}
	for i, step := range steps {
		w, body := s.do(http.MethodGet, "/api/v1/notifications/page", "bob", nil)
		s.Require().Equal(http.StatusOK, w.Code, "step %d", i)
		s.Len(body["notifications"], step.items, "step %d", i)
		s.Equal(step.exhausted, body["exhausted"], "step %d", i)
		s.EqualValues(step.skip, body["skip"], "step %d", i)
	}

	_, body := s.do(http.MethodGet, "/api/v1/notifications/page?reset=true", "bob", nil)
	s.EqualValues(10, body["skip"])
}

func (s *HandlersTestSuite) TestNotifyFollowers() {
	s.Require().NoError(s.directory.CreateFollow(s.ctx, "bob", "alice"))
	s.Require().NoError(s.directory.CreateFollow(s.ctx, "carol", "alice"))
	s.Require().NoError(s.directory.Block(s.ctx, "carol", "alice"))

	w, body := s.do(http.MethodPost, "/api/v1/notifications/followers", "alice", map[string]string{"message": "new track out"})
	s.Equal(http.StatusOK, w.Code)
	s.EqualValues(1, body["notified"])
	s.Equal([]interface{}{"carol"}, body["skipped"])

	s.Len(s.notificationsFor("bob"), 1)
	s.Empty(s.notificationsFor("carol"))

	w, _ = s.do(http.MethodPost, "/api/v1/notifications/followers", "alice", map[string]string{"message": "  "})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
}
