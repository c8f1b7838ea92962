// Package browser provides the live-page capability the automation engine drives,
// backed by Playwright.
//
// The package is built around three concepts:
//
//  1. Session: a Playwright browser, its isolated context and the single page a run owns
//  2. SessionManager: creates, tracks and tears down named sessions
//  3. Page and Element: the narrow interfaces the rest of Pilot consumes
//
// Nothing outside this package imports Playwright. The locator resolver, the workflow
// executor and the recorder only see Page and Element, which keeps them testable with
// the in-memory fakes in the browsertest package.
//
// # Session Lifecycle
//
//  1. Initialize: the manager installs and starts the Playwright driver once
//  2. StartSession: launches the engine (Chromium unless configured) and opens a page
//     with a default timeout
//  3. Use: the session's Page is handed to exactly one run at a time
//  4. Shutdown: releases every page, context and browser, then stops the driver
//
// # Selectors
//
// Page.Query accepts Playwright selector syntax, including the engine prefixes
// (xpath=, text=, role=) and layout pseudo-classes such as :right-of(). Query never
// waits; callers poll with their own bounded deadlines.
//
// # Example Usage
//
//	manager := browser.NewSessionManager()
//	if err := manager.Initialize(); err != nil {
//	    return err
//	}
//	defer manager.Shutdown()
//
//	session, err := manager.StartSession("run", browser.SessionOptions{Headless: true})
//	if err != nil {
//	    return err
//	}
//	page := session.Page()
//	if err := page.Navigate(ctx, "https://erp.example.com/items/new"); err != nil {
//	    return err
//	}
package browser
