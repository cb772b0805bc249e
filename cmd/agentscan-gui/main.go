package main

import (
	"errors"
	"fmt"
	"log"

	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"
	"jordanella.com/agent-scan/internal/app"
	"jordanella.com/agent-scan/internal/config"
	"jordanella.com/agent-scan/internal/gui"
	"jordanella.com/agent-scan/internal/scan"
	"jordanella.com/agent-scan/pkg/templates"
)

func main() {
	// Create Fyne application
	myApp := fyneapp.NewWithID("com.jordanella.agent-scan")
	myApp.Settings().SetTheme(&gui.ScanTheme{})

	mainWindow := myApp.NewWindow("Agent Select Scanner")
	mainWindow.Resize(gui.DefaultWindowSize)

	// Load configuration
	cfg, usedDefaults, err := app.LoadConfig(app.Options{ConfigPath: "Settings.ini"})
	if err != nil {
		log.Printf("Warning: Failed to load config: %v", err)
		cfg = config.NewDefaultConfig()
	} else if usedDefaults {
		log.Printf("Warning: Settings.ini not found, using defaults")
	}

	controller := gui.NewController(myApp, mainWindow, len(cfg.Areas))

	scanner, err := app.New(app.Options{
		Config:    cfg,
		Listeners: []scan.Listener{controller},
	})
	if err != nil {
		log.Printf("Error: %v", err)
		mainWindow.SetContent(controller.BuildUI())
		dialog.ShowError(startupError(err), mainWindow)
		mainWindow.SetMaster()
		mainWindow.ShowAndRun()
		return
	}
	controller.Attach(scanner)

	mainWindow.SetContent(controller.BuildUI())
	mainWindow.SetMaster()
	controller.Start()
	mainWindow.ShowAndRun()

	// Cleanup on exit
	if err := controller.Shutdown(); err != nil {
		log.Printf("Warning: shutdown: %v", err)
	}
}

func startupError(err error) error {
	if errors.Is(err, templates.ErrCatalogLoad) {
		return fmt.Errorf("failed to load reference images: %w", err)
	}
	return err
}
