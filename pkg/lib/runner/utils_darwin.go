//go:build darwin

package runner

// fionread is the FIONREAD ioctl request code on Darwin, _IOR('f', 127, int).
const fionread = 0x4004667F
