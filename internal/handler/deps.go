package handler

import (
	"eterna-home/internal/blobstore"
	"eterna-home/internal/rbac"
	"eterna-home/internal/usercache"
	"eterna-home/internal/worker"
	"eterna-home/pkg/jwtutil"
)

var (
	authz   *rbac.Authorizer
	users   *usercache.Store
	jwtUtil *jwtutil.JWTUtil
	blobs   blobstore.Store
	pool    *worker.Pool
)

// Deps carries the shared collaborators the handlers use
type Deps struct {
	Authz *rbac.Authorizer
	Users *usercache.Store
	JWT   *jwtutil.JWTUtil
	Blobs blobstore.Store
	Pool  *worker.Pool
}

// Init wires the handler package. Must be called once at startup before
// any route is served.
func Init(d Deps) {
	authz = d.Authz
	users = d.Users
	jwtUtil = d.JWT
	blobs = d.Blobs
	pool = d.Pool
}
