package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"eterna-home/internal/model"
	"eterna-home/internal/rbac"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEditorWithTenant(t *testing.T, s *testServer, email string) (uuid.UUID, string) {
	t.Helper()
	user := s.seedAccount(t, email, "password123", nil, "")
	tenantID := s.seedTenant(t, "docs-"+email, user.ID)
	require.NoError(t, s.db.Model(user).Update("tenant_id", tenantID).Error)
	require.NoError(t, s.db.Create(&model.UserTenantRole{
		UserID: user.ID, TenantID: tenantID, Role: rbac.RoleEditor.String(), Active: true,
	}).Error)
	return tenantID, s.login(t, email, "password123").AccessToken
}

func TestDocumentUploadDownloadRoundTrip(t *testing.T) {
	s := newTestServer(t)
	tenantID, token := seedEditorWithTenant(t, s, "writer@example.com")

	content := []byte("manual contents")
	body, contentType := multipartBody(t, map[string]string{
		"name":        "boiler manual",
		"description": "installation notes",
	}, "file", "manual.pdf", content)

	rec := s.request(http.MethodPost, "/api/documents", token, body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc model.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "boiler manual", doc.Name)
	assert.Equal(t, int64(len(content)), doc.SizeBytes)
	assert.Equal(t, tenantID, doc.TenantID)
	assert.NotEmpty(t, doc.Checksum)
	// The storage key is internal
	assert.NotContains(t, rec.Body.String(), "storage_key")

	rec = s.request(http.MethodGet, "/api/documents/"+itoa(doc.ID)+"/download", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())
}

func TestDocumentPermissionLadder(t *testing.T) {
	s := newTestServer(t)
	owner := s.seedAccount(t, "docadmin@example.com", "password123", nil, "")
	tenantID := s.seedTenant(t, "ladder", owner.ID)
	require.NoError(t, s.db.Model(owner).Update("tenant_id", tenantID).Error)
	s.db.Create(&model.UserTenantRole{
		UserID: owner.ID, TenantID: tenantID, Role: rbac.RoleAdmin.String(), Active: true,
	})
	s.seedAccount(t, "docviewer@example.com", "password123", &tenantID, rbac.RoleViewer)
	s.seedAccount(t, "doceditor@example.com", "password123", &tenantID, rbac.RoleEditor)

	adminToken := s.login(t, "docadmin@example.com", "password123").AccessToken
	body, contentType := multipartBody(t, nil, "file", "cert.pdf", []byte("certificate"))
	rec := s.request(http.MethodPost, "/api/documents", adminToken, body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code)
	var doc model.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

	// Viewer: read yes, write no, delete no
	viewerToken := s.login(t, "docviewer@example.com", "password123").AccessToken
	rec = s.request(http.MethodGet, "/api/documents/"+itoa(doc.ID), viewerToken, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	vBody, vType := multipartBody(t, nil, "file", "no.pdf", []byte("no"))
	rec = s.request(http.MethodPost, "/api/documents", viewerToken, vBody, vType)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.request(http.MethodDelete, "/api/documents/"+itoa(doc.ID), viewerToken, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Editor: write yes, delete no
	editorToken := s.login(t, "doceditor@example.com", "password123").AccessToken
	eBody, eType := multipartBody(t, nil, "file", "yes.pdf", []byte("yes"))
	rec = s.request(http.MethodPost, "/api/documents", editorToken, eBody, eType)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = s.request(http.MethodDelete, "/api/documents/"+itoa(doc.ID), editorToken, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin: delete yes, and the blob goes with it. The storage key is
	// not serialized, so read it from the row.
	var stored model.Document
	require.NoError(t, s.db.First(&stored, doc.ID).Error)
	rec = s.request(http.MethodDelete, "/api/documents/"+itoa(doc.ID), adminToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	s.blobs.mu.Lock()
	_, stillThere := s.blobs.data[stored.StorageKey]
	s.blobs.mu.Unlock()
	assert.False(t, stillThere)
}

func TestDocumentHiddenAcrossTenants(t *testing.T) {
	s := newTestServer(t)
	_, tokenA := seedEditorWithTenant(t, s, "team-a@example.com")
	_, tokenB := seedEditorWithTenant(t, s, "team-b@example.com")

	body, contentType := multipartBody(t, nil, "file", "private.pdf", []byte("secret"))
	rec := s.request(http.MethodPost, "/api/documents", tokenA, body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code)
	var doc model.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

	rec = s.request(http.MethodGet, "/api/documents/"+itoa(doc.ID), tokenB, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.request(http.MethodGet, "/api/documents/"+itoa(doc.ID)+"/download", tokenB, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentUploadRequiresFile(t *testing.T) {
	s := newTestServer(t)
	_, token := seedEditorWithTenant(t, s, "empty@example.com")

	body, contentType := multipartBody(t, map[string]string{"name": "nothing"}, "", "", nil)
	rec := s.request(http.MethodPost, "/api/documents", token, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
