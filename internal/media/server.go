package media

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"wayfare/internal/common"
	"wayfare/internal/dbmongo"
)

// HTTPServer uploads and serves message attachments stored in GridFS.
type HTTPServer struct {
	storage *dbmongo.AttachmentStorage
	router  *mux.Router
}

func NewHTTPServer(mongoClient *dbmongo.MongoClient) *HTTPServer {
	s := &HTTPServer{
		storage: dbmongo.NewAttachmentStorage(mongoClient),
	}

	router := mux.NewRouter()
	router.Handle("/attachments", common.AuthMiddleware(http.HandlerFunc(s.uploadAttachment))).Methods("POST")
	router.HandleFunc("/attachments/{attachmentId}", s.serveAttachment).Methods("GET")
	router.HandleFunc("/health", s.health).Methods("GET")
	s.router = router

	return s
}

func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *HTTPServer) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	uploaderID := common.CallerID(r.Context())
	if uploaderID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	attachment, err := s.storage.Upload(r.Context(), header.Filename, mimeType, uploaderID, file)
	if err != nil {
		log.Printf("attachment upload failed: %v", err)
		http.Error(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, attachment)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func (s *HTTPServer) serveAttachment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	attachmentID := vars["attachmentId"]

	reader, attachment, err := s.storage.Download(r.Context(), attachmentID)
	if err != nil {
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}

	contentType := attachment.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", attachment.Size))

	if _, err := io.Copy(w, reader); err != nil {
		log.Printf("Error streaming attachment: %v", err)
	}
}

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("media server is healthy"))
}
