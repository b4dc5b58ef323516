//go:build linux

package runner

// fionread is the FIONREAD ioctl request code for Linux
// Source: asm-generic/ioctls.h (via <linux/termios.h>)
const fionread = 0x541B
