package shellintegration

// hookScript is the single line injected into a PTY to install the run-state
// hooks. The shell is detected inline via $ZSH_VERSION / $BASH_VERSION rather
// than on our side of the PTY: at re-injection time the other end may be an
// ssh/mosh remote whose shell we have no way to know. The leading space keeps
// the line out of history under HISTCONTROL=ignorespace; the hooks are harmless
// if it lands in history anyway.
//
// zsh branch: register precmd/preexec through the function-array hook system.
// bash branch: __dp_prompt_shown gates the DEBUG trap so preexec only fires
// between a completed prompt and the next command, not for every simple
// command in a pipeline.
const hookScript = ` if [ -n "$ZSH_VERSION" ]; then __dp_precmd() { printf '\033]7770;precmd;%d\007' "$?"; }; __dp_preexec() { printf '\033]7770;preexec\007'; }; precmd_functions+=(__dp_precmd); preexec_functions+=(__dp_preexec); elif [ -n "$BASH_VERSION" ]; then __dp_prompt_shown=1; __dp_precmd() { __dp_prompt_shown=1; printf '\033]7770;precmd;%d\007' "$?"; }; __dp_preexec() { if [ "$__dp_prompt_shown" = 1 ]; then __dp_prompt_shown=0; printf '\033]7770;preexec\007'; fi; }; PROMPT_COMMAND="__dp_precmd${PROMPT_COMMAND:+;$PROMPT_COMMAND}"; trap '__dp_preexec' DEBUG; fi
`

// InitialInjection builds the bytes written on first attach: stty -echo, the
// hook script, stty echo, clear. The caller sleeps ~100ms after the first step
// so the echo toggle settles before the script lands (the delay crosses a real
// time boundary this package does not own).
func InitialInjection() [][]byte {
	return [][]byte{
		[]byte(" stty -echo\n"),
		[]byte(hookScript),
		[]byte(" stty echo\n"),
		[]byte(" clear\n"),
	}
}

// ReinjectionScript builds the bytes written when re-injecting hooks into an
// unhooked sub-shell: a visible notice, then the script, without the
// stty/clear dance (the remote shell is already showing user output).
func ReinjectionScript() [][]byte {
	return [][]byte{
		[]byte(" echo '[dispatcher] re-establishing shell integration'\n"),
		[]byte(hookScript),
	}
}
