package handlers

import (
	"net/http"
	"time"

	"github.com/zfogg/beacon/internal/models"
)

func (s *HandlersTestSuite) TestJoinCommunity() {
	path := "/api/v1/communities/" + s.community.ID + "/join"

	w, body := s.do(http.MethodPost, path, "carol", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(true, body["joined"])
	s.EqualValues(2, body["notified"])
	s.EqualValues(1, body["admins_notified"])
	s.Equal([]string{"carol@" + s.community.ID}, s.hub.joined)

	bobNotes := s.notificationsFor("bob")
	s.Require().Len(bobNotes, 1)
	s.Equal("Carol joined the community", bobNotes[0].Message)

	var aliceMessages []string
	for _, n := range s.notificationsFor("alice") {
		aliceMessages = append(aliceMessages, n.Message)
	}
	s.ElementsMatch([]string{
		"Carol joined the community",
		`Carol joined the community "Synths"`,
	}, aliceMessages)
	s.Empty(s.notificationsFor("carol"))

	w, body = s.do(http.MethodPost, path, "carol", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(false, body["joined"])
	s.Len(s.notificationsFor("alice"), 2)
	s.Len(s.hub.joined, 1)

	admins, err := s.directory.AdminIDs(s.ctx, s.community.ID)
	s.Require().NoError(err)
	s.Equal([]string{"alice"}, admins)

	w, _ = s.do(http.MethodPost, "/api/v1/communities/nope/join", "carol", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlersTestSuite) TestLeaveCommunity() {
	path := "/api/v1/communities/" + s.community.ID + "/leave"

	w, body := s.do(http.MethodPost, path, "carol", nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("you are not a member of this community", body["message"])

	w, body = s.do(http.MethodPost, path, "bob", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(true, body["left"])
	s.Nil(body["new_admin"])
	s.Equal([]string{"bob@" + s.community.ID}, s.hub.left)

	members, err := s.directory.MemberIDs(s.ctx, s.community.ID)
	s.Require().NoError(err)
	s.Equal([]string{"alice"}, members)

	w, _ = s.do(http.MethodPost, "/api/v1/communities/nope/leave", "alice", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlersTestSuite) TestLastAdminLeaveReassigns() {
	s.Require().NoError(s.directory.AddMember(s.ctx, s.community.ID, "carol", false))
	s.Require().NoError(s.db.Model(&models.CommunityMember{}).
		Where("user_id = ?", "carol").
		Update("joined_at", time.Now().Add(time.Hour)).Error)

	w, body := s.do(http.MethodPost, "/api/v1/communities/"+s.community.ID+"/leave", "alice", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("bob", body["new_admin"])

	admins, err := s.directory.AdminIDs(s.ctx, s.community.ID)
	s.Require().NoError(err)
	s.Equal([]string{"bob"}, admins)

	notes := s.notificationsFor("bob")
	s.Require().Len(notes, 1)
	s.Equal(`You have been assigned as the new admin of the community "Synths".`, notes[0].Message)
	s.Empty(s.notificationsFor("carol"))
}

func (s *HandlersTestSuite) TestLastMemberLeaves() {
	s.Require().NoError(s.directory.RemoveMember(s.ctx, s.community.ID, "bob"))

	w, body := s.do(http.MethodPost, "/api/v1/communities/"+s.community.ID+"/leave", "alice", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Nil(body["new_admin"])

	members, err := s.directory.MemberIDs(s.ctx, s.community.ID)
	s.Require().NoError(err)
	s.Empty(members)
}

func (s *HandlersTestSuite) TestAnnounceRequiresAdmin() {
	path := "/api/v1/communities/" + s.community.ID + "/announce"

	w, _ := s.do(http.MethodPost, path, "bob", map[string]string{"message": "free samples"})
	s.Equal(http.StatusForbidden, w.Code)

	w, body := s.do(http.MethodPost, path, "alice", map[string]string{"message": "meetup friday"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.EqualValues(1, body["notified"])
	s.Equal("meetup friday", s.notificationsFor("bob")[0].Message)
	s.Empty(s.notificationsFor("alice"))
}

func (s *HandlersTestSuite) TestReportCommunity() {
	path := "/api/v1/communities/" + s.community.ID + "/report"

	w, _ := s.do(http.MethodPost, path, "carol", map[string]string{"reason": ""})
	s.Equal(http.StatusUnprocessableEntity, w.Code)

	w, body := s.do(http.MethodPost, path, "carol", map[string]string{"reason": "spam"})
	s.Require().Equal(http.StatusAccepted, w.Code)
	s.EqualValues(1, body["notified"])

	notes := s.notificationsFor("alice")
	s.Require().Len(notes, 1)
	s.Equal(`Carol reported the community "Synths": spam`, notes[0].Message)
	s.Empty(s.notificationsFor("bob"))
}
