package v1

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/digitalkey/digitalkey/internal/config"
	"github.com/digitalkey/digitalkey/internal/db/repositories"
	"github.com/digitalkey/digitalkey/internal/services"
	"github.com/digitalkey/digitalkey/internal/storage/local"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testEnv wires every handler group over a single shared sqlmock connection,
// mirroring the production router. Expectations set on mock are matched in
// order across all repositories.
type testEnv struct {
	mock   sqlmock.Sqlmock
	router *gin.Engine
	backup *services.BackupService
}

func newTestEnv(t *testing.T, deletePolicy string) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	store, err := local.New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	backup := services.NewBackupService(store, config.BackupConfig{
		Enabled:           true,
		KeysPrefix:        "digital-keys",
		PermissionsPrefix: "permissions",
	})

	permSvc := services.NewPermissionService(
		repositories.NewUserRepository(db),
		repositories.NewMachineRepository(db),
		repositories.NewDigitalKeyRepository(db),
		repositories.NewPermissionRepository(sqlxDB),
		repositories.NewAuditRepository(sqlxDB),
		backup,
		deletePolicy,
	)

	userHandlers := NewUserHandlers(db, permSvc)
	machineHandlers := NewMachineHandlers(db, permSvc)
	keyHandlers := NewDigitalKeyHandlers(db, permSvc, backup)
	permHandlers := NewPermissionHandlers(sqlxDB, permSvc, backup)
	auditHandlers := NewAuditLogHandlers(sqlxDB)

	r := gin.New()

	r.POST("/users", userHandlers.CreateUserHandler())
	r.GET("/users", userHandlers.ListUsersHandler())
	r.GET("/users/:id", userHandlers.GetUserHandler())
	r.GET("/users/username/:username", userHandlers.GetUserByUsernameHandler())
	r.PUT("/users/:id", userHandlers.UpdateUserHandler())
	r.DELETE("/users/:id", userHandlers.DeleteUserHandler())

	r.POST("/machines", machineHandlers.CreateMachineHandler())
	r.GET("/machines", machineHandlers.ListMachinesHandler())
	r.GET("/machines/:id", machineHandlers.GetMachineHandler())
	r.GET("/machines/name/:name", machineHandlers.GetMachineByNameHandler())
	r.PUT("/machines/:id", machineHandlers.UpdateMachineHandler())
	r.DELETE("/machines/:id", machineHandlers.DeleteMachineHandler())

	r.POST("/digital-keys", keyHandlers.CreateDigitalKeyHandler())
	r.GET("/digital-keys", keyHandlers.ListDigitalKeysHandler())
	r.GET("/digital-keys/:id", keyHandlers.GetDigitalKeyHandler())
	r.GET("/digital-keys/name/:name", keyHandlers.GetDigitalKeyByNameHandler())
	r.GET("/digital-keys/owner/:owner", keyHandlers.ListDigitalKeysByOwnerHandler())
	r.PUT("/digital-keys/:id", keyHandlers.UpdateDigitalKeyHandler())
	r.DELETE("/digital-keys/:id", keyHandlers.DeleteDigitalKeyHandler())
	r.GET("/digital-keys/cloud/uploads/list", keyHandlers.ListKeyUploadsHandler())
	r.GET("/digital-keys/cloud/download/:id", keyHandlers.DownloadKeySnapshotHandler())

	r.POST("/permissions/grant", permHandlers.GrantPermissionHandler())
	r.GET("/permissions", permHandlers.ListPermissionsHandler())
	r.GET("/permissions/:id", permHandlers.GetPermissionHandler())
	r.GET("/permissions/user/:id", permHandlers.ListUserPermissionsHandler())
	r.GET("/permissions/machine/:id", permHandlers.ListMachinePermissionsHandler())
	r.GET("/permissions/user/:id/machine/:machine_id", permHandlers.GetPairPermissionHandler())
	r.PUT("/permissions/:id", permHandlers.UpdatePermissionHandler())
	r.POST("/permissions/:id/revoke", permHandlers.RevokePermissionHandler())
	r.POST("/permissions/user/:id/machine/:machine_id/revoke", permHandlers.RevokePairPermissionHandler())
	r.DELETE("/permissions/:id", permHandlers.DeletePermissionHandler())
	r.GET("/permissions/access/user/:id", permHandlers.UserAccessHandler())
	r.GET("/permissions/access/machine/:id", permHandlers.MachineAccessHandler())
	r.GET("/permissions/cloud/uploads/list", permHandlers.ListPermissionUploadsHandler())
	r.GET("/permissions/cloud/download/:id", permHandlers.DownloadPermissionSnapshotHandler())

	r.GET("/audit-logs", auditHandlers.ListAuditLogsHandler())

	return &testEnv{mock: mock, router: r, backup: backup}
}

func jsonBody(v interface{}) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func getJSON(resp *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &m)
	return m
}
