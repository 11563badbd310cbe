// Package modules reads module declarations.
//
// A module is a directory holding config.toml. Regular modules live under
// modules_root; names of the form hosts/<host> live under hosts_root.
// Declarations are decoded strictly: unknown keys and unknown enum values
// are configuration errors reported before anything is deployed.
//
//	depends = ["shell-common"]
//
//	[[files]]
//	target = "~/.zshrc"
//	source = "zshrc"
//	type = "copy"
//
//	[[tasks]]
//	shell = "chsh -s /bin/zsh"
//	phase = "setup"
//	hook = "post"
//
//	[[packages]]
//	install = ["zsh"]
//
//	[[messages]]
//	message = "Restart your shell"
//
//	[[generate]]
//	target = "~/.config/shell/aliases"
//	source = "aliases"
//
//	[context_vars]
//	prompt = "minimal"
package modules
