// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/quietwire/relay/backend/limits"
	"github.com/quietwire/relay/backend/middleware"
	"github.com/quietwire/relay/backend/models"
	"github.com/quietwire/relay/backend/relay"
	"github.com/quietwire/relay/backend/storage"
)

// MessageHandler is the /v1/messages surface: submission with device
// consistency validation, retrieval, and acknowledged deletion.
type MessageHandler struct {
	accounts   storage.AccountStore
	messages   storage.MessageStore
	dispatcher *relay.Dispatcher
	receipts   storage.ReceiptSender
	limiter    limits.Limiter
	log        *zap.Logger
	now        func() time.Time
}

func NewMessageHandler(accounts storage.AccountStore, messages storage.MessageStore,
	dispatcher *relay.Dispatcher, receipts storage.ReceiptSender,
	limiter limits.Limiter, log *zap.Logger) *MessageHandler {
	return &MessageHandler{
		accounts:   accounts,
		messages:   messages,
		dispatcher: dispatcher,
		receipts:   receipts,
		limiter:    limiter,
		log:        log,
		now:        time.Now,
	}
}

func (h *MessageHandler) Register(r *mux.Router) {
	r.HandleFunc("/v1/messages/", h.SendMessage).Methods("POST")
	r.HandleFunc("/v1/messages/{destination}", h.SendMessage).Methods("PUT")
	r.HandleFunc("/v1/messages/", h.GetMessages).Methods("GET")
	r.HandleFunc("/v1/messages/{source}/{timestamp}", h.DeleteMessage).Methods("DELETE")
}

// SendMessage accepts a sender's fan-out envelope. The submission only takes
// effect when it addresses exactly the destination's active devices with
// current registration ids; otherwise the caller gets a structured 409/410
// and no message is stored.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerIdentity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.limiter.Validate(r.Context(), caller.Number); err != nil {
		if errors.Is(err, limits.ErrRateLimited) {
			http.Error(w, "Rate limit exceeded", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	var list models.IncomingMessageList
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Legacy clients post the destination inside the body instead of the path.
	destination := mux.Vars(r)["destination"]
	if destination == "" {
		destination = list.Destination
	}
	if destination == "" {
		http.Error(w, "Missing destination", http.StatusBadRequest)
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), destination)
	if err != nil {
		h.log.Error("account lookup failed", zap.String("destination", destination), zap.Error(err))
		http.Error(w, "Failed to load destination", http.StatusInternalServerError)
		return
	}
	if account == nil {
		http.Error(w, "Destination not found", http.StatusNotFound)
		return
	}

	active := relay.ActiveDevices(account, h.now())
	if err := relay.Validate(active, &list); err != nil {
		var mismatch *relay.MismatchError
		var stale *relay.StaleError
		switch {
		case errors.As(err, &mismatch):
			writeJSON(w, http.StatusConflict, models.MismatchedDevices{
				MissingDevices: mismatch.Missing,
				ExtraDevices:   mismatch.Extra,
			})
		case errors.As(err, &stale):
			writeJSON(w, http.StatusGone, models.StaleDevices{
				StaleDevices: stale.Stale,
			})
		default:
			http.Error(w, "Internal error", http.StatusInternalServerError)
		}
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), account, caller.Number, caller.DeviceID, &list); err != nil {
		var body *relay.BodyError
		if errors.As(err, &body) {
			http.Error(w, "Invalid message body", http.StatusBadRequest)
			return
		}
		h.log.Error("dispatch failed",
			zap.String("source", caller.Number),
			zap.String("destination", destination),
			zap.Error(err))
		http.Error(w, "Failed to deliver message", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetMessages drains-lists the caller device's queue in FIFO order. Storage
// ids are masked: the wire id is always zero and acknowledgment goes by
// (source, timestamp).
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerIdentity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entities, err := h.messages.List(r.Context(), caller.Number, caller.DeviceID)
	if err != nil {
		h.log.Error("queue list failed", zap.String("number", caller.Number), zap.Error(err))
		http.Error(w, "Failed to retrieve messages", http.StatusInternalServerError)
		return
	}

	out := models.OutgoingMessageEntityList{
		Messages: make([]models.OutgoingMessageEntity, 0, len(entities)),
	}
	for _, entity := range entities {
		out.Messages = append(out.Messages, entity.Outgoing())
	}

	writeJSON(w, http.StatusOK, out)
}

// DeleteMessage acknowledges a message by (source, timestamp). Deleting an
// absent key still succeeds, so client acknowledgment retries stay cheap.
// A receipt goes back to the sender only when a content message was removed.
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerIdentity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	source := vars["source"]
	timestamp, err := strconv.ParseInt(vars["timestamp"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid timestamp", http.StatusBadRequest)
		return
	}

	removed, err := h.messages.Delete(r.Context(), caller.Number, caller.DeviceID, source, timestamp)
	if err != nil {
		h.log.Error("queue delete failed", zap.String("number", caller.Number), zap.Error(err))
		http.Error(w, "Failed to delete message", http.StatusInternalServerError)
		return
	}

	if removed != nil && removed.Type != models.TypeReceipt {
		if err := h.receipts.SendReceipt(r.Context(), caller.Number, caller.DeviceID,
			removed.Source, removed.Timestamp, removed.Relay); err != nil {
			h.log.Warn("receipt delivery failed",
				zap.String("destination", removed.Source),
				zap.Int64("timestamp", removed.Timestamp),
				zap.Error(err))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
