package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/CarPoolLink/CarPoolLink/internal/calendar"
	"github.com/CarPoolLink/CarPoolLink/internal/common/logger"
	"github.com/CarPoolLink/CarPoolLink/internal/schedule"
)

// ScheduleHandler 把排班核心的六类操作映射为 HTTP 接口。
// 不做任何业务判断：校验与不变量全部在 schedule.Store 的事务里，
// 这里只负责参数解析、错误分类和 JSON 视图组装。
type ScheduleHandler struct {
	store *schedule.Store
	log   logger.Logger
}

func NewScheduleHandler(store *schedule.Store, log logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{store: store, log: log}
}

// RegisterRoutes 挂载排班路由。
func (h *ScheduleHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/groups/{groupId}/schedule", h.GetWeekSchedule).Methods(http.MethodGet)
	r.HandleFunc("/api/groups/{groupId}/schedule/current", h.GetWeekContaining).Methods(http.MethodGet)
	r.HandleFunc("/api/groups/{groupId}/vehicles", h.AttachVehicleCreatingSlot).Methods(http.MethodPost)
	r.HandleFunc("/api/slots", h.CreateSlot).Methods(http.MethodPost)
	r.HandleFunc("/api/slots/{slotId}", h.GetSlot).Methods(http.MethodGet)
	r.HandleFunc("/api/slots/{slotId}/vehicles", h.AttachVehicle).Methods(http.MethodPost)
	r.HandleFunc("/api/slots/{slotId}/vehicles/{vehicleId}", h.DetachVehicle).Methods(http.MethodDelete)
	r.HandleFunc("/api/slots/{slotId}/vehicles/{assignmentId}/children", h.AttachChild).Methods(http.MethodPost)
	r.HandleFunc("/api/slots/{slotId}/children/{childId}", h.DetachChild).Methods(http.MethodDelete)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError 把核心层的哨兵错误映射为 HTTP 状态码。
func (h *ScheduleHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var calErr *calendar.CalendarError
	switch {
	case errors.As(err, &calErr):
		status = http.StatusBadRequest
	case errors.Is(err, schedule.ErrSlotNotFound),
		errors.Is(err, schedule.ErrVehicleNotFound),
		errors.Is(err, schedule.ErrDriverNotFound),
		errors.Is(err, schedule.ErrChildNotFound),
		errors.Is(err, schedule.ErrAssignmentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, schedule.ErrDuplicateSlot),
		errors.Is(err, schedule.ErrDuplicateAssignment),
		errors.Is(err, schedule.ErrDuplicateChildAssignment):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError && h.log != nil {
		h.log.Errorf("schedule handler error: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *ScheduleHandler) writeSlotList(w http.ResponseWriter, slots []schedule.ScheduleSlot, tz string) {
	out := make([]slotView, 0, len(slots))
	for i := range slots {
		view, err := toSlotView(&slots[i], tz)
		if err != nil {
			h.writeError(w, err)
			return
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetWeekSchedule GET /api/groups/{groupId}/schedule?year=&week=&tz=
func (h *ScheduleHandler) GetWeekSchedule(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	tz := r.URL.Query().Get("tz")
	if tz == "" {
		tz = "UTC"
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid year"})
		return
	}
	week, err := strconv.Atoi(r.URL.Query().Get("week"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid week"})
		return
	}

	slots, err := h.store.ListSlotsForISOWeek(r.Context(), groupID, year, week, tz)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSlotList(w, slots, tz)
}

// GetWeekContaining GET /api/groups/{groupId}/schedule/current?at=&tz=
// at 缺省为当前时刻。
func (h *ScheduleHandler) GetWeekContaining(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	tz := r.URL.Query().Get("tz")
	if tz == "" {
		tz = "UTC"
	}
	at := time.Now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		var err error
		at, err = calendar.ParseInstant(raw)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	slots, err := h.store.ListSlotsForWeekContaining(r.Context(), groupID, at, tz)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSlotList(w, slots, tz)
}

// GetSlot GET /api/slots/{slotId}?tz=
func (h *ScheduleHandler) GetSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := h.store.FindSlotByID(r.Context(), mux.Vars(r)["slotId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if slot == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "slot not found"})
		return
	}
	view, err := toSlotView(slot, r.URL.Query().Get("tz"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type createSlotRequest struct {
	GroupID  string `json:"group_id"`
	Datetime string `json:"datetime"`
}

// CreateSlot POST /api/slots
func (h *ScheduleHandler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.GroupID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "group_id required"})
		return
	}
	at, err := calendar.ParseInstant(req.Datetime)
	if err != nil {
		h.writeError(w, err)
		return
	}

	slot, err := h.store.CreateSlot(r.Context(), req.GroupID, at)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view, err := toSlotView(slot, "")
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type attachVehicleRequest struct {
	Datetime     string  `json:"datetime,omitempty"` // 仅“建槽位并挂车”需要
	VehicleID    string  `json:"vehicle_id"`
	DriverID     *string `json:"driver_id,omitempty"`
	SeatOverride *int    `json:"seat_override,omitempty"`
}

// AttachVehicle POST /api/slots/{slotId}/vehicles
func (h *ScheduleHandler) AttachVehicle(w http.ResponseWriter, r *http.Request) {
	var req attachVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.VehicleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "vehicle_id required"})
		return
	}

	va, err := h.store.AttachVehicle(r.Context(), mux.Vars(r)["slotId"], req.VehicleID, req.DriverID, req.SeatOverride)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVehicleAssignmentView(va, nil))
}

// AttachVehicleCreatingSlot POST /api/groups/{groupId}/vehicles
// 对应“把车辆拖到空白格子”：找到或建出槽位再挂车，整体一个事务。
func (h *ScheduleHandler) AttachVehicleCreatingSlot(w http.ResponseWriter, r *http.Request) {
	var req attachVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.VehicleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "vehicle_id required"})
		return
	}
	at, err := calendar.ParseInstant(req.Datetime)
	if err != nil {
		h.writeError(w, err)
		return
	}

	va, err := h.store.AttachVehicleCreatingSlot(r.Context(), mux.Vars(r)["groupId"], at, req.VehicleID, req.DriverID, req.SeatOverride)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVehicleAssignmentView(va, nil))
}

// DetachVehicle DELETE /api/slots/{slotId}/vehicles/{vehicleId}
func (h *ScheduleHandler) DetachVehicle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := h.store.DetachVehicle(r.Context(), vars["slotId"], vars["vehicleId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detachVehicleView{
		Removed:     toVehicleAssignmentView(res.Removed, nil),
		SlotDeleted: res.SlotDeleted,
	})
}

type attachChildRequest struct {
	ChildID string `json:"child_id"`
}

// AttachChild POST /api/slots/{slotId}/vehicles/{assignmentId}/children
func (h *ScheduleHandler) AttachChild(w http.ResponseWriter, r *http.Request) {
	var req attachChildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ChildID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "child_id required"})
		return
	}

	vars := mux.Vars(r)
	ca, err := h.store.AttachChild(r.Context(), vars["slotId"], vars["assignmentId"], req.ChildID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := childAssignmentView{ID: ca.ID, ChildID: ca.ChildID}
	if ca.Child != nil {
		view.ChildName = ca.Child.Name
	}
	writeJSON(w, http.StatusCreated, view)
}

// DetachChild DELETE /api/slots/{slotId}/children/{childId}
func (h *ScheduleHandler) DetachChild(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ca, err := h.store.DetachChild(r.Context(), vars["slotId"], vars["childId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, childAssignmentView{ID: ca.ID, ChildID: ca.ChildID})
}
