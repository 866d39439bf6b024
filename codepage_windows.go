//go:build windows

package main

import "golang.org/x/sys/windows"

const codePageUTF8 = 65001

// setConsoleUTF8 lets CJK profile descriptions print correctly. It is a no-op
// without a console.
func setConsoleUTF8() {
	_ = windows.SetConsoleOutputCP(codePageUTF8)
	_ = windows.SetConsoleCP(codePageUTF8)
}
