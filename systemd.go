package main

import (
	_ "embed"
	"io"
	"text/template"
)

//go:embed eightled.service
var eightledServiceEmbed string

type ServiceParams struct {
	BinaryPath string
	User       string
}

// SystemdServiceFile renders the unit file for running `eightled serve`
// as a service.
func SystemdServiceFile(w io.Writer, params ServiceParams) error {
	tmpl, err := template.New("eightled.service").Parse(eightledServiceEmbed)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, params)
}
