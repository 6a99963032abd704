// Package legaldocs is a small client for the legal document generation
// service: it lists the available templates and uploads new PDF templates.
package legaldocs
