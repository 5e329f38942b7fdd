package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/mvale/housetab/internal/backup"
	"github.com/mvale/housetab/internal/model"
	"github.com/mvale/housetab/internal/store"
)

type BackupHandler struct {
	manager *backup.Manager
	backups *store.BackupStore
}

func NewBackupHandler(manager *backup.Manager, backups *store.BackupStore) *BackupHandler {
	return &BackupHandler{manager: manager, backups: backups}
}

// Run triggers an immediate backup with the passphrase from the request
// body. The upload runs inline; household databases are small.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backups are not configured"})
		return
	}

	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Passphrase == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "passphrase is required"})
		return
	}

	id, err := h.manager.RunNow(r.Context(), req.Passphrase)
	if err != nil {
		log.Printf("backup run failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "backup failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"backup_id": id})
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	latest, err := h.backups.LatestCompleted()
	if err != nil {
		log.Printf("latest backup lookup failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get backup status"})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		backup.Status
		ScheduleArmed bool          `json:"schedule_armed"`
		Latest        *model.Backup `json:"latest_backup,omitempty"`
	}{
		Status:        h.manager.Status(),
		ScheduleArmed: h.manager.HasCachedKey(),
		Latest:        latest,
	})
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	backups, err := h.backups.List(limit)
	if err != nil {
		log.Printf("list backups failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list backups"})
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	totalSize, err := h.backups.TotalSize()
	if err != nil {
		log.Printf("total backup size failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list backups"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"backups":          backups,
		"total_size_bytes": totalSize,
	})
}

// requireBackup resolves the {id} path parameter to a backup record,
// writing the error response and returning nil when it cannot.
func (h *BackupHandler) requireBackup(w http.ResponseWriter, r *http.Request) *model.Backup {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil
	}
	record, err := h.backups.GetByID(id)
	if err != nil {
		log.Printf("get backup failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get backup"})
		return nil
	}
	if record == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "backup not found"})
		return nil
	}
	return record
}

// Download streams the encrypted backup object as stored; the client
// decrypts it offline with the passphrase.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	record := h.requireBackup(w, r)
	if record == nil {
		return
	}

	body, record, err := h.manager.Download(r.Context(), record.ID)
	if err != nil {
		log.Printf("backup download failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to download backup"})
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Filename))
	if record.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("backup download stream interrupted: %v", err)
	}
}

// Restore swaps the live database for the chosen backup. On success the
// process exits for a supervisor restart, so no response is written.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	record := h.requireBackup(w, r)
	if record == nil {
		return
	}

	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Passphrase == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "passphrase is required"})
		return
	}

	if err := h.manager.Restore(r.Context(), record.ID, req.Passphrase); err != nil {
		log.Printf("backup restore failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "restore failed"})
		return
	}
}
