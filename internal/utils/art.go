package utils

// SaveBoxArt is the banner the CLI prints on startup.
const SaveBoxArt = `
 ____    _    __     __ _____  ____    ___  __  __
/ ___|  / \   \ \   / /| ____|| __ )  / _ \ \ \/ /
\___ \ / _ \   \ \ / / |  _|  |  _ \ | | | | \  /
 ___) / ___ \   \ V /  | |___ | |_) || |_| | /  \
|____/_/   \_\   \_/   |_____||____/  \___/ /_/\_\`
