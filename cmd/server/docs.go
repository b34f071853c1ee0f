// Package main Proctord API
//
//	@title			Proctord API
//	@version		1.0
//	@description	Server-side core of a real-time remote proctoring platform: per-room SFU signaling, incident rules engine, and AI analysis control
//
//	@contact.name	Proctord Support
//	@contact.url	https://github.com/observer/proctord
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@externalDocs.description	OpenAPI
//	@externalDocs.url			https://swagger.io/resources/open-api/
package main
