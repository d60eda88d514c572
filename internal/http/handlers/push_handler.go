package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ops-notify/internal/domain"
	"github.com/tbourn/go-ops-notify/internal/push"
)

// SubscriptionRequest mirrors the browser's PushSubscription.toJSON().
type SubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required" example:"https://fcm.googleapis.com/fcm/send/abc"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
}

// BroadcastRequest is an ad-hoc notification for all of a user's devices.
type BroadcastRequest struct {
	Title string `json:"title" example:"Site closed"`
	Body  string `json:"body" example:"High winds, crane work suspended"`
	URL   string `json:"url" example:"https://ops.example.com/events"`
}

// BroadcastResponse reports how many outbox messages were queued.
type BroadcastResponse struct {
	Queued int `json:"queued" example:"2"`
}

// ListSubscriptionsResponse is returned by GET /push/subscriptions.
type ListSubscriptionsResponse struct {
	Subscriptions []domain.PushSubscription `json:"subscriptions"`
}

// RegisterSubscription godoc
// @ID          registerPushSubscription
// @Summary     Register a push subscription
// @Description Stores a Web Push endpoint for the current user. Re-registering an endpoint updates it in place.
// @Tags        Push
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.SubscriptionRequest  true  "Subscription"
//
// @Success     201  {object}  domain.PushSubscription
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /push/subscriptions [post]
func (h *Handlers) RegisterSubscription(c *gin.Context) {
	var req SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "endpoint and keys are required")
		return
	}
	sub, err := h.subs.Register(c.Request.Context(), userID(c), req.Endpoint, req.Keys.P256dh, req.Keys.Auth, c.Request.UserAgent())
	if err != nil {
		failFor(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, sub)
}

// ListSubscriptions godoc
// @ID          listPushSubscriptions
// @Summary     List push subscriptions
// @Tags        Push
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Success     200  {object}  handlers.ListSubscriptionsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /push/subscriptions [get]
func (h *Handlers) ListSubscriptions(c *gin.Context) {
	subs, err := h.subs.List(c.Request.Context(), userID(c))
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	if subs == nil {
		subs = []domain.PushSubscription{}
	}
	ok(c, http.StatusOK, ListSubscriptionsResponse{Subscriptions: subs})
}

// DeleteSubscription godoc
// @ID          deletePushSubscription
// @Summary     Remove a push subscription
// @Tags        Push
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Subscription ID (UUID)"  format(uuid)
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Subscription not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /push/subscriptions/{id} [delete]
func (h *Handlers) DeleteSubscription(c *gin.Context) {
	id, valid := validID(c, "subscription")
	if !valid {
		return
	}
	if err := h.subs.Remove(c.Request.Context(), userID(c), id); err != nil {
		failFor(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}

// Broadcast godoc
// @ID          broadcastPush
// @Summary     Queue a notification to all of the user's devices
// @Description Writes one outbox message per registered subscription. Delivery happens on the next outbox sweep, with retries.
// @Tags        Push
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.BroadcastRequest  true  "Notification"
// @Success     202  {object}  handlers.BroadcastResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /push/broadcast [post]
func (h *Handlers) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	n, err := h.outbox.BroadcastToUser(c.Request.Context(), userID(c), push.Notification{
		Title: req.Title,
		Body:  req.Body,
		URL:   req.URL,
	})
	if err != nil {
		failFor(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusAccepted, BroadcastResponse{Queued: n})
}
