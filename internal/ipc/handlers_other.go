//go:build !unix

package ipc

func (s *Server) registerPlatformHandlers() {}
