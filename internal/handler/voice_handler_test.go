package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"eterna-home/internal/model"
	"eterna-home/internal/rbac"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceCommandLifecycle(t *testing.T) {
	s := newTestServer(t)
	_, token := seedEditorWithTenant(t, s, "speaker@example.com")

	body, contentType := multipartBody(t, map[string]string{
		"transcript": "turn on the hallway light",
	}, "", "", nil)
	rec := s.request(http.MethodPost, "/api/voice/commands", token, body, contentType)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var cmd model.VoiceCommand
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmd))
	assert.Equal(t, model.VoiceStatusPending, cmd.Status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.pool.Start(ctx, 1)
	s.pool.Stop()

	rec = s.request(http.MethodGet, "/api/voice/commands/"+itoa(cmd.ID), token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var done model.VoiceCommand
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.Equal(t, model.VoiceStatusProcessed, done.Status)
	assert.NotEmpty(t, done.Response)
}

func TestVoiceCommandWithAudioAttachment(t *testing.T) {
	s := newTestServer(t)
	_, token := seedEditorWithTenant(t, s, "recorder@example.com")

	body, contentType := multipartBody(t, map[string]string{
		"transcript": "what is the status",
	}, "audio", "clip.wav", []byte("RIFFdata"))
	rec := s.request(http.MethodPost, "/api/voice/commands", token, body, contentType)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var cmd model.VoiceCommand
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmd))
	var stored model.VoiceCommand
	require.NoError(t, s.db.First(&stored, cmd.ID).Error)
	assert.NotEmpty(t, stored.AudioKey)
	s.blobs.mu.Lock()
	_, ok := s.blobs.data[stored.AudioKey]
	s.blobs.mu.Unlock()
	assert.True(t, ok)
}

func TestVoiceCommandRequiresTranscript(t *testing.T) {
	s := newTestServer(t)
	_, token := seedEditorWithTenant(t, s, "mute@example.com")

	body, contentType := multipartBody(t, nil, "", "", nil)
	rec := s.request(http.MethodPost, "/api/voice/commands", token, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVoiceCommandsScopedToSubmitter(t *testing.T) {
	s := newTestServer(t)
	owner := s.seedAccount(t, "house-admin@example.com", "password123", nil, "")
	tenantID := s.seedTenant(t, "voices", owner.ID)
	require.NoError(t, s.db.Model(owner).Update("tenant_id", tenantID).Error)
	s.db.Create(&model.UserTenantRole{
		UserID: owner.ID, TenantID: tenantID, Role: rbac.RoleAdmin.String(), Active: true,
	})
	alice := s.seedAccount(t, "alice@example.com", "password123", &tenantID, rbac.RoleViewer)
	s.seedAccount(t, "bob@example.com", "password123", &tenantID, rbac.RoleViewer)

	aliceToken := s.login(t, "alice@example.com", "password123").AccessToken
	body, contentType := multipartBody(t, map[string]string{"transcript": "turn off the oven"}, "", "", nil)
	rec := s.request(http.MethodPost, "/api/voice/commands", aliceToken, body, contentType)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var cmd model.VoiceCommand
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmd))
	require.Equal(t, alice.ID, cmd.UserID)

	// Bob cannot see Alice's command
	bobToken := s.login(t, "bob@example.com", "password123").AccessToken
	rec = s.request(http.MethodGet, "/api/voice/commands/"+itoa(cmd.ID), bobToken, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.request(http.MethodGet, "/api/voice/commands", bobToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "turn off the oven")

	// A tenant admin sees everything
	adminToken := s.login(t, "house-admin@example.com", "password123").AccessToken
	rec = s.request(http.MethodGet, "/api/voice/commands", adminToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "turn off the oven")
}

func TestAssistantRecordsInteractions(t *testing.T) {
	s := newTestServer(t)
	_, token := seedEditorWithTenant(t, s, "curious@example.com")

	rec := s.jsonRequest(http.MethodPost, "/api/assistant/ask", token, map[string]string{
		"prompt": "how many houses do I have?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var interaction model.AIInteraction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &interaction))
	assert.NotEmpty(t, interaction.SessionID)
	assert.Contains(t, interaction.Response, "house")

	rec = s.request(http.MethodGet, "/api/assistant/history", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []model.AIInteraction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 1)
}

func TestAssistantHistoryIsolatedPerUser(t *testing.T) {
	s := newTestServer(t)
	owner := s.seedAccount(t, "ai-admin@example.com", "password123", nil, "")
	tenantID := s.seedTenant(t, "assistants", owner.ID)
	require.NoError(t, s.db.Model(owner).Update("tenant_id", tenantID).Error)
	s.db.Create(&model.UserTenantRole{
		UserID: owner.ID, TenantID: tenantID, Role: rbac.RoleAdmin.String(), Active: true,
	})
	s.seedAccount(t, "chatty@example.com", "password123", &tenantID, rbac.RoleViewer)

	chattyToken := s.login(t, "chatty@example.com", "password123").AccessToken
	rec := s.jsonRequest(http.MethodPost, "/api/assistant/ask", chattyToken, map[string]string{
		"prompt": "how many rooms?",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// A viewer asking for everyone's history is denied
	rec = s.request(http.MethodGet, "/api/assistant/history?all=true", chattyToken, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The tenant admin may read it all
	adminToken := s.login(t, "ai-admin@example.com", "password123").AccessToken
	rec = s.request(http.MethodGet, "/api/assistant/history?all=true", adminToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "how many rooms?")
}
