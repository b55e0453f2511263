package v1

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/digitalkey/digitalkey/internal/config"
)

var userSQLCols = []string{"id", "username", "user_type", "email", "created_at", "updated_at"}

func sampleUserRows() *sqlmock.Rows {
	return sqlmock.NewRows(userSQLCols).
		AddRow(int64(1), "alice", "admin", "alice@example.com", time.Now(), time.Now())
}

// ---------------------------------------------------------------------------
// CreateUserHandler
// ---------------------------------------------------------------------------

func TestCreateUserHandler_Success(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	env.mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	body := jsonBody(map[string]interface{}{
		"username":  "alice",
		"user_type": "admin",
		"email":     "alice@example.com",
	})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("POST", "/users", body))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["username"] != "alice" {
		t.Errorf("username = %v, want alice", resp["username"])
	}
}

func TestCreateUserHandler_InvalidUserType(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	body := jsonBody(map[string]interface{}{
		"username":  "alice",
		"user_type": "superadmin",
		"email":     "alice@example.com",
	})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("POST", "/users", body))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestCreateUserHandler_InvalidEmail(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	body := jsonBody(map[string]interface{}{
		"username":  "alice",
		"user_type": "admin",
		"email":     "not-an-email",
	})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("POST", "/users", body))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestCreateUserHandler_DuplicateUsername(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	env.mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})

	body := jsonBody(map[string]interface{}{
		"username":  "alice",
		"user_type": "admin",
		"email":     "alice@example.com",
	})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("POST", "/users", body))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

// ---------------------------------------------------------------------------
// ListUsersHandler
// ---------------------------------------------------------------------------

func TestListUsersHandler_Success(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	env.mock.ExpectQuery("SELECT.*FROM users").
		WillReturnRows(sampleUserRows())
	env.mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/users", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["users"] == nil {
		t.Error("response missing 'users' key")
	}
	if resp["pagination"] == nil {
		t.Error("response missing 'pagination' key")
	}
}

func TestListUsersHandler_InvalidTypeFilter(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/users?type=robot", nil))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetUserHandler / GetUserByUsernameHandler
// ---------------------------------------------------------------------------

func TestGetUserHandler_NotFound(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	env.mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(userSQLCols))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/users/99", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetUserHandler_InvalidID(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/users/abc", nil))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestGetUserByUsernameHandler_Success(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	env.mock.ExpectQuery("SELECT.*FROM users WHERE username").
		WithArgs("alice").
		WillReturnRows(sampleUserRows())

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/users/username/alice", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["email"] != "alice@example.com" {
		t.Errorf("email = %v, want alice@example.com", resp["email"])
	}
}

// ---------------------------------------------------------------------------
// UpdateUserHandler
// ---------------------------------------------------------------------------

func TestUpdateUserHandler_NotFound(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	env.mock.ExpectExec("UPDATE users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	body := jsonBody(map[string]interface{}{
		"username":  "ghost",
		"user_type": "user",
		"email":     "ghost@example.com",
	})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("PUT", "/users/99", body))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// DeleteUserHandler
// ---------------------------------------------------------------------------

func TestDeleteUserHandler_Success(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	env.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM permissions WHERE user_id`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	env.mock.ExpectExec("DELETE FROM users").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("DELETE", "/users/1", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestDeleteUserHandler_BlockedByActivePermissions(t *testing.T) {
	env := newTestEnv(t, config.DeletePolicyBlock)

	env.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM permissions WHERE user_id`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("DELETE", "/users/1", nil))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409: %s", w.Code, w.Body.String())
	}
}
