package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/dftm/dftm-calendar/internal/gcal"
	"github.com/dftm/dftm-calendar/internal/i18n"
	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/services"
)

const (
	adminToken = "admin-token"
	userToken  = "user-token"
	rootToken  = "root-token"
	eveToken   = "eve-token"

	// Issued to bob while he still was an admin.
	staleAdminToken = "stale-admin-token"
)

type fakeAuth struct {
	login func(ctx context.Context, params services.LoginParams) (*services.LoginResult, error)
}

func (f *fakeAuth) Login(ctx context.Context, params services.LoginParams) (*services.LoginResult, error) {
	return f.login(ctx, params)
}

func (f *fakeAuth) ParseJWTToken(token string) (*services.Claims, error) {
	claims := func(sub string, role models.Role) *services.Claims {
		return &services.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
			Role:             role,
		}
	}
	switch token {
	case adminToken:
		return claims("u-admin", models.RoleAdmin), nil
	case userToken:
		return claims("u-bob", models.RoleUser), nil
	case rootToken:
		return claims("u-root", models.RoleSuperAdmin), nil
	case eveToken:
		return claims("u-eve", models.RoleUser), nil
	case staleAdminToken:
		return claims("u-bob", models.RoleAdmin), nil
	default:
		return nil, jwt.ErrTokenMalformed
	}
}

type fakeUsers struct {
	users map[string]models.User
}

func (f *fakeUsers) CreateUser(_ context.Context, params services.CreateUserParams) (*models.User, error) {
	u := models.User{ID: "u-new", Email: params.Email, Role: params.Role, Active: true, PreferredLanguage: params.Language}
	return &u, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, services.ErrUserNotFound
	}
	return &u, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, services.ErrUserNotFound
}

func (f *fakeUsers) ListUsers(context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) UpdateUser(ctx context.Context, params services.UpdateUserParams) (*models.User, error) {
	u, err := f.GetUserByID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if params.FirstName != nil {
		u.FirstName = *params.FirstName
	}
	if params.Language != nil {
		u.PreferredLanguage = *params.Language
	}
	return u, nil
}

func (f *fakeUsers) DeleteUser(ctx context.Context, userID string) error {
	_, err := f.GetUserByID(ctx, userID)
	return err
}

func (f *fakeUsers) LookupUser(ctx context.Context, userID string) (models.User, error) {
	u, err := f.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	return *u, nil
}

type fakeTasks struct {
	tasks      map[string]models.Task
	lastFilter services.TaskFilter
	saved      []models.Task
	// beforeSave runs between the handler's load and the save.
	beforeSave func(f *fakeTasks)
}

func (f *fakeTasks) CreateTask(_ context.Context, params services.CreateTaskParams) (*models.Task, error) {
	t := models.Task{
		ID:          "t-new",
		Title:       params.Title,
		Description: params.Description,
		Status:      models.StatusPending,
		Priority:    params.Priority,
		AssignerID:  params.AssignerID,
		DueDate:     params.DueDate,
	}
	return &t, nil
}

func (f *fakeTasks) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, services.ErrTaskNotFound
	}
	t = t.Clone()
	return &t, nil
}

func (f *fakeTasks) ListTasks(_ context.Context, filter services.TaskFilter) ([]models.Task, error) {
	f.lastFilter = filter
	out := make([]models.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (f *fakeTasks) SaveTask(_ context.Context, task models.Task, expected models.Status) (*models.Task, error) {
	if f.beforeSave != nil {
		f.beforeSave(f)
	}
	stored, ok := f.tasks[task.ID]
	if !ok {
		return nil, services.ErrTaskNotFound
	}
	if stored.Status != expected {
		return nil, services.ErrTaskStatusChanged
	}
	f.tasks[task.ID] = task
	f.saved = append(f.saved, task)
	return &task, nil
}

func (f *fakeTasks) UpdateTask(ctx context.Context, params services.UpdateTaskParams) (*models.Task, error) {
	t, err := f.GetTask(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if params.Title != nil {
		t.Title = *params.Title
	}
	if params.Description != nil {
		t.Description = *params.Description
	}
	if params.Reporter != nil {
		t.Reporter = *params.Reporter
	}
	f.tasks[t.ID] = *t
	return t, nil
}

func (f *fakeTasks) SetArchived(ctx context.Context, taskID string, archived bool) (*models.Task, error) {
	t, err := f.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	t.Archived = archived
	f.tasks[taskID] = *t
	return t, nil
}

func (f *fakeTasks) DeleteTask(_ context.Context, taskID string) error {
	if _, ok := f.tasks[taskID]; !ok {
		return services.ErrTaskNotFound
	}
	delete(f.tasks, taskID)
	return nil
}

type fakeComments struct {
	tasks    *fakeTasks
	comments []models.Comment
}

func (f *fakeComments) CreateComment(_ context.Context, params services.CreateCommentParams) (*models.Comment, error) {
	if _, ok := f.tasks.tasks[params.TaskID]; !ok {
		return nil, services.ErrTaskNotFound
	}
	c := models.Comment{
		ID:        "c-" + params.TaskID,
		TaskID:    params.TaskID,
		AuthorID:  params.AuthorID,
		Text:      params.Text,
		CreatedAt: time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
	f.comments = append(f.comments, c)
	return &c, nil
}

func (f *fakeComments) ListComments(_ context.Context, taskID string) ([]models.Comment, error) {
	out := make([]models.Comment, 0)
	for _, c := range f.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakePublisher struct {
	published []models.Task
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, tasks []models.Task) (gcal.Result, error) {
	f.published = tasks
	return gcal.Result{Created: len(tasks)}, f.err
}

type testApp struct {
	router   http.Handler
	tasks    *fakeTasks
	users    *fakeUsers
	comments *fakeComments
}

func newTestApp(t *testing.T, publisher CalendarPublisher) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	translator, err := i18n.New(models.LanguageEnglish)
	if err != nil {
		t.Fatalf("i18n.New() err=%v", err)
	}

	due := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	tasks := &fakeTasks{tasks: map[string]models.Task{
		"t-pending": {
			ID:       "t-pending",
			Title:    "Leaking tap",
			Status:   models.StatusPending,
			Priority: models.PriorityMedium,
			DueDate:  &due,
		},
		"t-bob": {
			ID:         "t-bob",
			Title:      "Broken lamp",
			Status:     models.StatusInProgress,
			Priority:   models.PriorityLow,
			AssigneeID: "u-bob",
			DueDate:    &due,
		},
	}}
	users := &fakeUsers{users: map[string]models.User{
		"u-admin": {ID: "u-admin", Email: "admin@example.com", Role: models.RoleAdmin, Active: true},
		"u-bob":   {ID: "u-bob", FirstName: "Bob", Email: "bob@example.com", Role: models.RoleUser, Active: true},
		"u-root":  {ID: "u-root", Email: "root@example.com", Role: models.RoleSuperAdmin, Active: true},
		"u-eve":   {ID: "u-eve", Email: "eve@example.com", Role: models.RoleUser, Active: false},
	}}
	comments := &fakeComments{tasks: tasks}
	auth := &fakeAuth{login: func(_ context.Context, params services.LoginParams) (*services.LoginResult, error) {
		if params.Email != "bob@example.com" {
			return nil, services.ErrUserNotFound
		}
		if params.Password != "secret" {
			return nil, services.ErrUserPasswordMismatch
		}
		return &services.LoginResult{
			UserID:               "u-bob",
			Role:                 models.RoleUser,
			AccessToken:          userToken,
			AccessTokenExpiresAt: time.Now().Add(time.Hour),
		}, nil
	}}

	h := New(zerolog.Nop(), auth, users, tasks, comments, translator, publisher, time.UTC)
	h.(*handlerImpl).now = func() time.Time {
		return time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	}

	router := gin.New()
	RegisterRoutes(router, h)
	return &testApp{router: router, tasks: tasks, users: users, comments: comments}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body err=%v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q err=%v", rr.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Error  string `json:"error"`
	Field  string `json:"field"`
	Action string `json:"action"`
}

func TestAuth_MissingToken(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodGet, "/api/v1/tasks", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/tasks", "garbage", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status=%d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuth_CookieToken(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: userToken})
	rr := httptest.NewRecorder()
	app.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	me := decode[getUserResponse](t, rr)
	if me.ID != "u-bob" || me.DisplayName != "Bob" {
		t.Fatalf("me=%+v", me)
	}
}

func TestAdminRoutes_ForbiddenForUsers(t *testing.T) {
	app := newTestApp(t, nil)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/tasks"},
		{http.MethodGet, "/api/v1/tasks/pending"},
		{http.MethodPost, "/api/v1/tasks/t-bob/approve"},
		{http.MethodGet, "/api/v1/users"},
	} {
		rr := app.do(t, tc.method, tc.path, userToken, map[string]any{})
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s %s status=%d, want %d", tc.method, tc.path, rr.Code, http.StatusForbidden)
		}
	}
}

func TestLogin(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "bob@example.com",
		"password": "secret",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[loginResponse](t, rr)
	if resp.AccessToken != userToken || resp.Role != models.RoleUser {
		t.Fatalf("resp=%+v", resp)
	}
	if len(rr.Result().Cookies()) == 0 {
		t.Fatalf("login did not set the access token cookie")
	}

	rr = app.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "bob@example.com",
		"password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status=%d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestApprove_WithoutAssignee(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/v1/tasks/t-pending/approve", adminToken, map[string]any{})
	if rr.Code != http.StatusConflict {
		t.Fatalf("status=%d, want %d body=%s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	if body := decode[errorBody](t, rr); body.Action != "approve" {
		t.Fatalf("action=%q, want approve", body.Action)
	}
	if len(app.tasks.saved) != 0 {
		t.Fatalf("saved %d tasks after refused transition", len(app.tasks.saved))
	}
}

func TestApprove_UnknownAssignee(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/v1/tasks/t-pending/approve", adminToken, map[string]any{
		"assignee_id": "u-ghost",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want %d body=%s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
	if body := decode[errorBody](t, rr); body.Field != "assignee" {
		t.Fatalf("field=%q, want assignee", body.Field)
	}
}

func TestApprove_ImplicitAssign(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/v1/tasks/t-pending/approve", adminToken, map[string]any{
		"assignee_id": "u-bob",
		"due_date":    "2024-03-20",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[getTaskResponse](t, rr)
	if resp.Status != models.StatusApproved || resp.AssigneeID != "u-bob" {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.DueDate == nil || *resp.DueDate != "2024-03-20" {
		t.Fatalf("due_date=%v, want 2024-03-20", resp.DueDate)
	}
	if resp.AssignerID != "u-admin" {
		t.Fatalf("assigner=%q, want u-admin", resp.AssignerID)
	}
}

func TestAssign(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPatch, "/api/v1/tasks/t-pending/assign", adminToken, map[string]string{
		"user_id": "u-bob",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	saved := app.tasks.tasks["t-pending"]
	if saved.AssigneeID != "u-bob" || saved.AssignerID != "u-admin" || saved.Status != models.StatusPending {
		t.Fatalf("saved=%+v", saved)
	}
}

func TestSetStatus(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPatch, "/api/v1/tasks/t-bob/status", userToken, map[string]string{
		"status": "DONE",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusBadRequest)
	}
	if body := decode[errorBody](t, rr); body.Field != "status" {
		t.Fatalf("field=%q, want status", body.Field)
	}

	rr = app.do(t, http.MethodPatch, "/api/v1/tasks/t-bob/status", userToken, map[string]string{
		"status": "completed",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := app.tasks.tasks["t-bob"].Status; got != models.StatusCompleted {
		t.Fatalf("saved status=%s, want %s", got, models.StatusCompleted)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodGet, "/api/v1/tasks/missing", adminToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusNotFound)
	}

	// Bob can't see a task assigned to nobody.
	rr = app.do(t, http.MethodGet, "/api/v1/tasks/t-pending", userToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign task status=%d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/tasks/t-bob", userToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("own task status=%d, want %d", rr.Code, http.StatusOK)
	}
}

func TestGetTaskActions(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodGet, "/api/v1/tasks/t-pending/actions?lang=sv", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	admin := decode[getTaskActionsResponse](t, rr)
	if len(admin.Actions) != 6 {
		t.Fatalf("admin actions=%v, want 6", admin.Actions)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/tasks/t-bob/actions", userToken, nil)
	user := decode[getTaskActionsResponse](t, rr)
	if len(user.Actions) != 2 || user.Actions[0] != "update_status" || user.Actions[1] != "reschedule" {
		t.Fatalf("user actions=%v", user.Actions)
	}
}

func TestGetTasks_UserSeesOwnTasksOnly(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodGet, "/api/v1/tasks?assignee=u-admin&status=pending,in_progress", userToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	f := app.tasks.lastFilter
	if f.AssigneeID != "u-bob" {
		t.Fatalf("assignee filter=%q, want u-bob", f.AssigneeID)
	}
	if len(f.Statuses) != 2 || f.Statuses[1] != models.StatusInProgress {
		t.Fatalf("statuses=%v", f.Statuses)
	}
	if f.Archived == nil || *f.Archived {
		t.Fatalf("archived filter=%v, want false", f.Archived)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/tasks?status=bogus", adminToken, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bogus status code=%d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestGetCalendar(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodGet, "/api/v1/calendar?month=2024-03&lang=sv", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[getCalendarResponse](t, rr)
	if len(resp.Cells) != 35 {
		t.Fatalf("cells=%d, want 35", len(resp.Cells))
	}
	if resp.Previous != "2024-02" || resp.Next != "2024-04" {
		t.Fatalf("navigation=%s/%s", resp.Previous, resp.Next)
	}
	if len(resp.Weekdays) != 7 {
		t.Fatalf("weekdays=%v", resp.Weekdays)
	}
	for i := 0; i < 4; i++ {
		if resp.Cells[i].Date != nil || resp.Cells[i].IsCurrentMonth {
			t.Fatalf("cell %d should be padding", i)
		}
	}

	// March 1st 2024 is a Friday, so the 15th sits at 4 + 14.
	cell := resp.Cells[18]
	if cell.Date == nil || *cell.Date != "2024-03-15" {
		t.Fatalf("cell 18 date=%v, want 2024-03-15", cell.Date)
	}
	if len(cell.Tasks) != 2 {
		t.Fatalf("cell 18 tasks=%d, want 2", len(cell.Tasks))
	}

	f := app.tasks.lastFilter
	if f.From == nil || !f.From.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from=%v", f.From)
	}
	if f.To == nil || !f.To.Equal(time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("to=%v", f.To)
	}
}

func TestGetCalendar_DefaultsToCurrentMonth(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodGet, "/api/v1/calendar", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if resp := decode[getCalendarResponse](t, rr); resp.Month != "2024-03" {
		t.Fatalf("month=%s, want 2024-03", resp.Month)
	}
}

func TestGetCalendar_UserFilter(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodGet, "/api/v1/calendar?month=2024-03&assignee=u-admin", userToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := app.tasks.lastFilter.AssigneeID; got != "u-bob" {
		t.Fatalf("assignee filter=%q, want u-bob", got)
	}

	resp := decode[getCalendarResponse](t, rr)
	cell := resp.Cells[18]
	if len(cell.Tasks) != 1 || cell.Tasks[0].ID != "t-bob" {
		t.Fatalf("cell 18 tasks=%+v, want only t-bob", cell.Tasks)
	}
}

func TestGetCalendar_BadQuery(t *testing.T) {
	app := newTestApp(t, nil)

	for _, q := range []string{"month=2024-13", "tz=Mars/Olympus", "date_field=deadline", "show_completed=maybe"} {
		rr := app.do(t, http.MethodGet, "/api/v1/calendar?"+q, adminToken, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d, want %d", q, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestExportCalendar(t *testing.T) {
	rr := newTestApp(t, nil).do(t, http.MethodPost, "/api/v1/calendar/export?month=2024-03", adminToken, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled status=%d, want %d", rr.Code, http.StatusServiceUnavailable)
	}

	pub := &fakePublisher{}
	app := newTestApp(t, pub)
	rr = app.do(t, http.MethodPost, "/api/v1/calendar/export?month=2024-03", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	f := app.tasks.lastFilter
	if len(f.Statuses) != 1 || f.Statuses[0] != models.StatusApproved {
		t.Fatalf("statuses=%v, want APPROVED only", f.Statuses)
	}

	app = newTestApp(t, &fakePublisher{err: errors.New("quota exceeded")})
	rr = app.do(t, http.MethodPost, "/api/v1/calendar/export?month=2024-03", adminToken, nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("failing publisher status=%d, want %d", rr.Code, http.StatusBadGateway)
	}
}

func TestUsers(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/v1/users", adminToken, map[string]string{
		"email":    "carol@example.com",
		"password": "secret1",
		"role":     "role_superadmin",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("grant superadmin status=%d, want %d", rr.Code, http.StatusForbidden)
	}

	rr = app.do(t, http.MethodPost, "/api/v1/users", adminToken, map[string]string{
		"email":    "carol@example.com",
		"password": "secret1",
		"role":     "wizard",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown role status=%d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = app.do(t, http.MethodPost, "/api/v1/users", adminToken, map[string]string{
		"email":              "carol@example.com",
		"password":           "secret1",
		"preferred_language": "pl-PL",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[getUserResponse](t, rr)
	if created.Role != models.RoleUser || created.PreferredLanguage != models.LanguagePolish {
		t.Fatalf("created=%+v", created)
	}

	rr = app.do(t, http.MethodDelete, "/api/v1/users/u-admin", adminToken, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("self delete status=%d, want %d", rr.Code, http.StatusConflict)
	}

	rr = app.do(t, http.MethodDelete, "/api/v1/users/u-bob", adminToken, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestUpdateProfile(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPut, "/api/v1/profile", userToken, map[string]string{
		"first_name":         "Robert",
		"preferred_language": "uk",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[getUserResponse](t, rr)
	if resp.ID != "u-bob" || resp.FirstName != "Robert" || resp.PreferredLanguage != models.LanguageUkrainian {
		t.Fatalf("resp=%+v", resp)
	}

	rr = app.do(t, http.MethodPut, "/api/v1/profile", userToken, map[string]string{
		"preferred_language": "klingon",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad language status=%d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAuth_ReloadsUser(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodGet, "/api/v1/tasks", eveToken, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("inactive user status=%d, want %d", rr.Code, http.StatusUnauthorized)
	}

	// The token still says ADMIN, the account says USER.
	rr = app.do(t, http.MethodGet, "/api/v1/users", staleAdminToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("demoted admin status=%d, want %d", rr.Code, http.StatusForbidden)
	}

	delete(app.users.users, "u-bob")
	rr = app.do(t, http.MethodGet, "/api/v1/tasks", userToken, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("deleted user status=%d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestManageUser_SuperAdminProtected(t *testing.T) {
	app := newTestApp(t, nil)

	for _, tc := range []struct {
		name   string
		method string
		body   any
	}{
		{"password and deactivate", http.MethodPut, map[string]any{"password": "hijacked", "active": false}},
		{"demote", http.MethodPut, map[string]any{"role": "USER"}},
		{"delete", http.MethodDelete, nil},
	} {
		rr := app.do(t, tc.method, "/api/v1/users/u-root", adminToken, tc.body)
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s: status=%d, want %d body=%s", tc.name, rr.Code, http.StatusForbidden, rr.Body.String())
		}
	}
	if _, ok := app.users.users["u-root"]; !ok {
		t.Fatalf("superadmin was deleted")
	}

	rr := app.do(t, http.MethodPut, "/api/v1/users/u-admin", rootToken, map[string]string{"first_name": "Ada"})
	if rr.Code != http.StatusOK {
		t.Fatalf("superadmin edits admin status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = app.do(t, http.MethodPut, "/api/v1/users/u-ghost", adminToken, map[string]string{"first_name": "Casper"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown user status=%d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSaveTransition_ConcurrentChange(t *testing.T) {
	app := newTestApp(t, nil)
	app.tasks.beforeSave = func(f *fakeTasks) {
		task := f.tasks["t-pending"]
		task.Status = models.StatusRejected
		f.tasks["t-pending"] = task
	}

	rr := app.do(t, http.MethodPost, "/api/v1/tasks/t-pending/approve", adminToken, map[string]any{
		"assignee_id": "u-bob",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("status=%d, want %d body=%s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	if body := decode[errorBody](t, rr); body.Action != "approve" {
		t.Fatalf("action=%q, want approve", body.Action)
	}
	if got := app.tasks.tasks["t-pending"].Status; got != models.StatusRejected {
		t.Fatalf("stored status=%s, want %s", got, models.StatusRejected)
	}
}

func TestReschedule_SameDayInEveryZone(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPut, "/api/v1/tasks/t-bob/date?tz=Europe/Stockholm", userToken, map[string]string{
		"due_date": "2024-03-20",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	want := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	if due := app.tasks.tasks["t-bob"].DueDate; due == nil || !due.Equal(want) {
		t.Fatalf("stored due date=%v, want %v", due, want)
	}

	for _, tz := range []string{"UTC", "Europe/Stockholm", "America/New_York", "Pacific/Auckland"} {
		rr := app.do(t, http.MethodGet, "/api/v1/calendar?month=2024-03&tz="+tz, adminToken, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%s", tz, rr.Code, rr.Body.String())
		}
		resp := decode[getCalendarResponse](t, rr)

		// March 1st 2024 is a Friday, so the 20th sits at 4 + 19.
		cell := resp.Cells[23]
		if cell.Date == nil || *cell.Date != "2024-03-20" {
			t.Fatalf("%s: cell 23 date=%v, want 2024-03-20", tz, cell.Date)
		}
		if len(cell.Tasks) != 1 || cell.Tasks[0].ID != "t-bob" {
			t.Fatalf("%s: cell 23 tasks=%+v, want t-bob", tz, cell.Tasks)
		}
		if due := cell.Tasks[0].DueDate; due == nil || *due != "2024-03-20" {
			t.Fatalf("%s: due_date=%v, want 2024-03-20", tz, due)
		}
	}
}

func TestRejectTask(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/v1/tasks/t-pending/reject", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if resp := decode[getTaskResponse](t, rr); resp.Status != models.StatusRejected {
		t.Fatalf("status=%s, want %s", resp.Status, models.StatusRejected)
	}

	rr = app.do(t, http.MethodPost, "/api/v1/tasks/t-pending/reject", adminToken, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second reject status=%d, want %d", rr.Code, http.StatusConflict)
	}
	if body := decode[errorBody](t, rr); body.Action != "reject" {
		t.Fatalf("action=%q, want reject", body.Action)
	}

	rr = app.do(t, http.MethodPost, "/api/v1/tasks/t-bob/reject", adminToken, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("reject in progress status=%d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestSetTaskPriority(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPatch, "/api/v1/tasks/t-bob/priority", adminToken, map[string]string{
		"priority": "urgent",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := app.tasks.tasks["t-bob"].Priority; got != models.PriorityUrgent {
		t.Fatalf("saved priority=%s, want %s", got, models.PriorityUrgent)
	}

	rr = app.do(t, http.MethodPatch, "/api/v1/tasks/t-bob/priority", adminToken, map[string]string{
		"priority": "asap",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown priority status=%d, want %d", rr.Code, http.StatusBadRequest)
	}
	if body := decode[errorBody](t, rr); body.Field != "priority" {
		t.Fatalf("field=%q, want priority", body.Field)
	}
}

func TestRescheduleTask_Refused(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(task *models.Task)
	}{
		{"archived", func(task *models.Task) { task.Archived = true }},
		{"approved", func(task *models.Task) { task.Status = models.StatusApproved }},
		{"rejected", func(task *models.Task) { task.Status = models.StatusRejected }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, nil)
			task := app.tasks.tasks["t-pending"]
			tc.setup(&task)
			app.tasks.tasks["t-pending"] = task

			rr := app.do(t, http.MethodPut, "/api/v1/tasks/t-pending/date", adminToken, map[string]string{
				"due_date": "2024-03-20",
			})
			if rr.Code != http.StatusConflict {
				t.Fatalf("status=%d, want %d body=%s", rr.Code, http.StatusConflict, rr.Body.String())
			}
			if body := decode[errorBody](t, rr); body.Action != "reschedule" {
				t.Fatalf("action=%q, want reschedule", body.Action)
			}
			if len(app.tasks.saved) != 0 {
				t.Fatalf("saved %d tasks after refused reschedule", len(app.tasks.saved))
			}
		})
	}
}

func TestArchiveTask(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPut, "/api/v1/tasks/t-bob/archive", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if resp := decode[getTaskResponse](t, rr); !resp.Archived {
		t.Fatalf("archive response not archived")
	}

	rr = app.do(t, http.MethodPut, "/api/v1/tasks/t-bob/unarchive", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if app.tasks.tasks["t-bob"].Archived {
		t.Fatalf("task still archived after unarchive")
	}

	rr = app.do(t, http.MethodPut, "/api/v1/tasks/missing/archive", adminToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing task status=%d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = app.do(t, http.MethodPut, "/api/v1/tasks/t-bob/archive", userToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("user archive status=%d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestCreateTask(t *testing.T) {
	app := newTestApp(t, nil)

	for _, tc := range []struct {
		name      string
		body      map[string]any
		wantField string
	}{
		{"blank title", map[string]any{"title": "   "}, "title"},
		{"unknown priority", map[string]any{"title": "Leaking tap", "priority": "asap"}, "priority"},
		{"unknown language", map[string]any{"title": "Leaking tap", "description": "Kranen läcker", "description_language": "klingon"}, "description_language"},
		{"unknown translation", map[string]any{"title": "Leaking tap", "description_translations": map[string]string{"xx": "?"}}, "description_translations"},
		{"bad due date", map[string]any{"title": "Leaking tap", "due_date": "someday"}, "due_date"},
	} {
		rr := app.do(t, http.MethodPost, "/api/v1/tasks", adminToken, tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d, want %d", tc.name, rr.Code, http.StatusBadRequest)
			continue
		}
		if body := decode[errorBody](t, rr); body.Field != tc.wantField {
			t.Errorf("%s: field=%q, want %q", tc.name, body.Field, tc.wantField)
		}
	}

	rr := app.do(t, http.MethodPost, "/api/v1/tasks", adminToken, map[string]any{
		"title":                "  Leaking tap ",
		"description":          "Kranen läcker",
		"description_language": "sv-SE",
		"priority":             "high",
		"due_date":             "2024-03-20",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[getTaskResponse](t, rr)
	if resp.Title != "Leaking tap" || resp.Priority != models.PriorityHigh || resp.AssignerID != "u-admin" {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.DescriptionLanguage != models.LanguageSwedish {
		t.Fatalf("description_language=%q, want sv", resp.DescriptionLanguage)
	}
	if resp.DueDate == nil || *resp.DueDate != "2024-03-20" {
		t.Fatalf("due_date=%v, want 2024-03-20", resp.DueDate)
	}
}

func TestMutatingRoutes_HideForeignTasks(t *testing.T) {
	app := newTestApp(t, nil)

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodPatch, "/api/v1/tasks/t-pending/status", map[string]string{"status": "IN_PROGRESS"}},
		{http.MethodPut, "/api/v1/tasks/t-pending/date", map[string]string{"due_date": "2024-03-20"}},
		{http.MethodPost, "/api/v1/tasks/t-pending/comments", map[string]string{"text": "Mine now"}},
	} {
		rr := app.do(t, tc.method, tc.path, userToken, tc.body)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s %s status=%d, want %d", tc.method, tc.path, rr.Code, http.StatusNotFound)
		}
	}
	if len(app.tasks.saved) != 0 {
		t.Fatalf("saved %d foreign tasks", len(app.tasks.saved))
	}
	if len(app.comments.comments) != 0 {
		t.Fatalf("stored %d comments on a foreign task", len(app.comments.comments))
	}
}

func TestUpdateTask(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPatch, "/api/v1/tasks/t-pending", adminToken, map[string]any{
		"title":    "Dripping tap",
		"reporter": "Flat 3",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	saved := app.tasks.tasks["t-pending"]
	if saved.Title != "Dripping tap" || saved.Reporter != "Flat 3" || saved.Status != models.StatusPending {
		t.Fatalf("saved=%+v", saved)
	}

	rr = app.do(t, http.MethodPut, "/api/v1/tasks/t-pending", adminToken, map[string]any{
		"description":          "The tap drips",
		"description_language": "en",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if resp := decode[getTaskResponse](t, rr); resp.Description != "The tap drips" || resp.Title != "Dripping tap" {
		t.Fatalf("resp=%+v", resp)
	}

	rr = app.do(t, http.MethodPatch, "/api/v1/tasks/t-pending", adminToken, map[string]any{"title": " "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank title status=%d, want %d", rr.Code, http.StatusBadRequest)
	}
	if body := decode[errorBody](t, rr); body.Field != "title" {
		t.Fatalf("field=%q, want title", body.Field)
	}

	rr = app.do(t, http.MethodPatch, "/api/v1/tasks/missing", adminToken, map[string]any{"title": "Ghost"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing task status=%d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = app.do(t, http.MethodPatch, "/api/v1/tasks/t-bob", userToken, map[string]any{"title": "Mine"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("user edit status=%d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestComments(t *testing.T) {
	app := newTestApp(t, nil)

	rr := app.do(t, http.MethodPost, "/api/v1/tasks/t-bob/comments", userToken, map[string]any{
		"text":              "Bytte glödlampan",
		"text_language":     "sv",
		"text_translations": map[string]string{"en": "Replaced the bulb"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[getCommentResponse](t, rr)
	if created.AuthorID != "u-bob" || created.TaskID != "t-bob" || created.TextLanguage != models.LanguageSwedish {
		t.Fatalf("created=%+v", created)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/tasks/t-bob/comments?lang=en", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	list := decode[[]getCommentResponse](t, rr)
	if len(list) != 1 || list[0].Text != "Replaced the bulb" {
		t.Fatalf("comments=%+v", list)
	}

	rr = app.do(t, http.MethodPost, "/api/v1/tasks/t-bob/comments", userToken, map[string]any{"text": "  "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank comment status=%d, want %d", rr.Code, http.StatusBadRequest)
	}
	if body := decode[errorBody](t, rr); body.Field != "text" {
		t.Fatalf("field=%q, want text", body.Field)
	}

	rr = app.do(t, http.MethodPost, "/api/v1/tasks/t-bob/comments", userToken, map[string]any{
		"text":          "Fixed",
		"text_language": "klingon",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad language status=%d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = app.do(t, http.MethodGet, "/api/v1/tasks/missing/comments", adminToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing task status=%d, want %d", rr.Code, http.StatusNotFound)
	}
}
