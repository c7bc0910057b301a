package handlers

import (
	"net/http"

	v1mware "github.com/asia-ai/asia-chat/internal/api/v1/middleware"
	v1ws "github.com/asia-ai/asia-chat/internal/api/v1/handlers/websocket"
	"github.com/asia-ai/asia-chat/internal/services"
	"github.com/gorilla/mux"
)

func RegisterV1Routes(router *mux.Router, services *services.Services) {
	api := services.GetBackendClient()
	sessions := services.GetSessionService()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		HandleHealth(services.GetConnectionManager(), w, r)
	}).Methods("GET")

	// v1 routes
	v1 := router.PathPrefix("/v1").Subrouter()

	// Auth v1 routes (no session required)
	v1authRouter := v1.PathPrefix("/auth").Subrouter()
	v1authRouter.Handle("/login", v1mware.RateLimit("login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleLogin(api, sessions, w, r)
	}))).Methods("POST")
	v1authRouter.Handle("/register", v1mware.RateLimit("login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleRegister(api, w, r)
	}))).Methods("POST")
	v1authRouter.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		HandleLogout(api, sessions, w, r)
	}).Methods("POST")

	// Protected v1 routes (require a session)
	v1protectedRouter := v1.NewRoute().Subrouter()
	v1protectedRouter.Use(v1mware.RequireSession(sessions))

	v1protectedRouter.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		HandleCurrentUser(api, w, r)
	}).Methods("GET")

	// Protected v1 conversation routes
	v1conversationRouter := v1protectedRouter.PathPrefix("/conversations").Subrouter()
	v1conversationRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		HandleListConversations(api, w, r)
	}).Methods("GET")
	v1conversationRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		HandleCreateConversation(api, w, r)
	}).Methods("POST")
	v1conversationRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleGetConversation(api, w, r)
	}).Methods("GET")
	v1conversationRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleUpdateConversation(api, w, r)
	}).Methods("PUT", "PATCH")
	v1conversationRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleDeleteConversation(api, w, r)
	}).Methods("DELETE")
	v1conversationRouter.Handle("/{id}/messages", v1mware.RateLimit("send_message")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleSendMessage(api, w, r)
	}))).Methods("POST")
	v1conversationRouter.Handle("/{id}/live", v1ws.NewLiveHandler(services)).Methods("GET")

	// Protected v1 firm routes
	v1firmRouter := v1protectedRouter.PathPrefix("/firms").Subrouter()
	v1firmRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		HandleListFirms(api, w, r)
	}).Methods("GET")
	v1firmRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		HandleCreateFirm(api, w, r)
	}).Methods("POST")
	v1firmRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleGetFirm(api, w, r)
	}).Methods("GET")
	v1firmRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleUpdateFirm(api, w, r)
	}).Methods("PUT", "PATCH")
	v1firmRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleDeleteFirm(api, w, r)
	}).Methods("DELETE")
}
